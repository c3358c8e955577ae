// Package feedtest provides an in-memory feed.Source for tests.
package feedtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

// Source is an in-memory feed.Source. Push* methods deliver rows to the
// current subscription of a stream, if any.
type Source struct {
	mu      sync.Mutex
	chat    map[int64]chan pubsub.ChatInsertedPayload
	gifts   map[int64]chan pubsub.GiftInsertedPayload
	viewers map[int64]chan pubsub.ViewerCountPayload
	updates map[int64]chan pubsub.StreamUpdatedPayload
	opened  []string
	closed  []string
	// OnClose, when set, is invoked with the channel name of every closed
	// subscription. Tests use it to observe teardown ordering.
	OnClose func(channel string)
}

func NewSource() *Source {
	return &Source{
		chat:    map[int64]chan pubsub.ChatInsertedPayload{},
		gifts:   map[int64]chan pubsub.GiftInsertedPayload{},
		viewers: map[int64]chan pubsub.ViewerCountPayload{},
		updates: map[int64]chan pubsub.StreamUpdatedPayload{},
	}
}

func open[T any](s *Source, m map[int64]chan T, channel string, id int64) *feed.Subscription[T] {
	s.mu.Lock()
	ch := make(chan T, 64)
	m[id] = ch
	s.opened = append(s.opened, channel)
	s.mu.Unlock()

	return feed.NewSubscription[T](channel, ch, func() error {
		s.mu.Lock()
		if m[id] == ch {
			delete(m, id)
		}
		s.closed = append(s.closed, channel)
		onClose := s.OnClose
		s.mu.Unlock()
		if onClose != nil {
			onClose(channel)
		}
		return nil
	})
}

func (s *Source) ChatInserts(_ context.Context, id int64) (*feed.Subscription[pubsub.ChatInsertedPayload], error) {
	return open(s, s.chat, pubsub.ChatInsertsChannel(id), id), nil
}

func (s *Source) GiftInserts(_ context.Context, id int64) (*feed.Subscription[pubsub.GiftInsertedPayload], error) {
	return open(s, s.gifts, pubsub.GiftInsertsChannel(id), id), nil
}

func (s *Source) ViewerCounts(_ context.Context, id int64) (*feed.Subscription[pubsub.ViewerCountPayload], error) {
	return open(s, s.viewers, pubsub.ViewerChangesChannel(id), id), nil
}

func (s *Source) StreamUpdates(_ context.Context, id int64) (*feed.Subscription[pubsub.StreamUpdatedPayload], error) {
	return open(s, s.updates, pubsub.StreamUpdatesChannel(id), id), nil
}

func push[T any](s *Source, m map[int64]chan T, id int64, v T) error {
	s.mu.Lock()
	ch, ok := m[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for stream %d", id)
	}
	ch <- v
	return nil
}

func (s *Source) PushChat(id int64, v pubsub.ChatInsertedPayload) error {
	return push(s, s.chat, id, v)
}

func (s *Source) PushGift(id int64, v pubsub.GiftInsertedPayload) error {
	return push(s, s.gifts, id, v)
}

func (s *Source) PushViewerCount(id int64, v pubsub.ViewerCountPayload) error {
	return push(s, s.viewers, id, v)
}

func (s *Source) PushStreamUpdate(id int64, v pubsub.StreamUpdatedPayload) error {
	return push(s, s.updates, id, v)
}

// Subscribed reports whether a chat subscription for the stream is open.
func (s *Source) Subscribed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chat[id]
	return ok
}

// Opened returns the channels opened so far, in order.
func (s *Source) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// Closed returns the channels closed so far, in order.
func (s *Source) Closed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}
