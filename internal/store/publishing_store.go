package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

type presenceKey struct {
	viewerID     string
	liveStreamID int64
}

// PublishingPresenceStore wraps a PresenceStore and announces the recounted
// viewer total on the stream's viewer-change feed whenever a viewer joins,
// leaves, or flips between active and inactive. Plain refreshes of an
// unchanged record are not announced.
type PublishingPresenceStore struct {
	PresenceStore
	pub pubsub.Publisher

	mu     sync.Mutex
	active map[presenceKey]bool
}

// NewPublishingPresenceStore creates the decorator.
func NewPublishingPresenceStore(inner PresenceStore, pub pubsub.Publisher) *PublishingPresenceStore {
	return &PublishingPresenceStore{
		PresenceStore: inner,
		pub:           pub,
		active:        make(map[presenceKey]bool),
	}
}

func (s *PublishingPresenceStore) Upsert(ctx context.Context, record domain.PresenceRecord) error {
	if err := s.PresenceStore.Upsert(ctx, record); err != nil {
		return err
	}

	key := presenceKey{record.ViewerID, record.LiveStreamID}
	s.mu.Lock()
	prev, seen := s.active[key]
	s.active[key] = record.Active
	s.mu.Unlock()

	if seen && prev == record.Active {
		return nil
	}
	s.announce(ctx, record.LiveStreamID)
	return nil
}

func (s *PublishingPresenceStore) Delete(ctx context.Context, viewerID string, liveStreamID int64) error {
	if err := s.PresenceStore.Delete(ctx, viewerID, liveStreamID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.active, presenceKey{viewerID, liveStreamID})
	s.mu.Unlock()

	s.announce(ctx, liveStreamID)
	return nil
}

// announce is best effort: the write already succeeded, and pollers will
// pick the new total up on their next tick.
func (s *PublishingPresenceStore) announce(ctx context.Context, liveStreamID int64) {
	l := log.Ctx(ctx)
	if err := s.publishCount(ctx, liveStreamID); err != nil {
		l.Warn().Err(err).Int64(log.FieldLiveStreamID, liveStreamID).Msg("failed to announce viewer count")
	}
}

func (s *PublishingPresenceStore) publishCount(ctx context.Context, liveStreamID int64) error {
	count, err := s.PresenceStore.CountActiveViewers(ctx, liveStreamID)
	if err != nil {
		return fmt.Errorf("failed to recount viewers: %w", err)
	}

	ev, err := pubsub.NewEvent(pubsub.EventViewerCountChanged, liveStreamID, pubsub.ViewerCountPayload{
		LiveStreamID: liveStreamID,
		ViewerCount:  count,
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, pubsub.ViewerChangesChannel(liveStreamID), ev)
}
