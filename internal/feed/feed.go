// Package feed exposes the backend change feeds of one live stream as typed
// Go channels.
package feed

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

// Source opens change-feed subscriptions scoped to one live stream.
type Source interface {
	ChatInserts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.ChatInsertedPayload], error)
	GiftInserts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.GiftInsertedPayload], error)
	ViewerCounts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.ViewerCountPayload], error)
	StreamUpdates(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.StreamUpdatedPayload], error)
}

// Subscription delivers decoded rows until Close is called or the
// underlying subscriber drops the connection.
type Subscription[T any] struct {
	C       <-chan T
	channel string
	cancel  context.CancelFunc
	done    chan struct{}
	close   func() error
}

// Channel returns the pub/sub channel name backing the subscription.
func (s *Subscription[T]) Channel() string { return s.channel }

// finished is closed once C has been closed.
func (s *Subscription[T]) finished() <-chan struct{} { return s.done }

// Close unsubscribes and waits for the decoder goroutine to exit.
func (s *Subscription[T]) Close() error {
	s.cancel()
	err := s.close()
	<-s.done
	return err
}

// NewSubscription builds a Subscription from an already decoded stream.
// It is used by alternative sources and by tests.
func NewSubscription[T any](channel string, c <-chan T, closeFn func() error) *Subscription[T] {
	done := make(chan struct{})
	out := make(chan T)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-c:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &Subscription[T]{C: out, channel: channel, cancel: cancel, done: done, close: closeFn}
}

// PubSubSource implements Source on top of a pubsub.Subscriber, so the
// feeds work over either the redis or the kafka driver.
type PubSubSource struct {
	sub pubsub.Subscriber
}

func NewPubSubSource(sub pubsub.Subscriber) *PubSubSource {
	return &PubSubSource{sub: sub}
}

func (s *PubSubSource) ChatInserts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.ChatInsertedPayload], error) {
	return subscribe[pubsub.ChatInsertedPayload](ctx, s.sub, pubsub.ChatInsertsChannel(liveStreamID), pubsub.EventChatInserted)
}

func (s *PubSubSource) GiftInserts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.GiftInsertedPayload], error) {
	return subscribe[pubsub.GiftInsertedPayload](ctx, s.sub, pubsub.GiftInsertsChannel(liveStreamID), pubsub.EventGiftInserted)
}

func (s *PubSubSource) ViewerCounts(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.ViewerCountPayload], error) {
	return subscribe[pubsub.ViewerCountPayload](ctx, s.sub, pubsub.ViewerChangesChannel(liveStreamID), pubsub.EventViewerCountChanged)
}

func (s *PubSubSource) StreamUpdates(ctx context.Context, liveStreamID int64) (*Subscription[pubsub.StreamUpdatedPayload], error) {
	return subscribe[pubsub.StreamUpdatedPayload](ctx, s.sub, pubsub.StreamUpdatesChannel(liveStreamID), pubsub.EventStreamUpdated)
}

func subscribe[T any](ctx context.Context, sub pubsub.Subscriber, channel, eventType string) (*Subscription[T], error) {
	subCtx, cancel := context.WithCancel(ctx)

	events, err := sub.Subscribe(subCtx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan T, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		l := log.Ctx(ctx).With().Str(log.FieldChannel, channel).Logger()

		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Type != "" && event.Type != eventType {
					l.Debug().Str("type", event.Type).Msg("ignoring unexpected event type")
					continue
				}
				var payload T
				if err := event.UnmarshalPayload(&payload); err != nil {
					l.Warn().Err(err).Msg("invalid change-feed payload")
					continue
				}
				select {
				case out <- payload:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription[T]{
		C:       out,
		channel: channel,
		cancel:  cancel,
		done:    done,
		close: func() error {
			// Unsubscribe on a fresh context: the subscription context is
			// already cancelled at this point.
			return sub.Unsubscribe(context.Background(), channel)
		},
	}, nil
}
