package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed/feedtest"
	"github.com/weiawesome/wes-io-live/viewer/internal/repository"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

const streamID int64 = 42

type recordingSink struct {
	mu      sync.Mutex
	events  []domain.OverlayEvent
	emitted int
}

func (s *recordingSink) Emit(e domain.OverlayEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e.Clone())
	s.emitted++
}

func (s *recordingSink) Update(key string, fn func(*domain.OverlayEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].Key == key {
			fn(&s.events[i])
			return
		}
	}
}

func (s *recordingSink) snapshot() []domain.OverlayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OverlayEvent, len(s.events))
	for i, e := range s.events {
		out[i] = e.Clone()
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

type fakeCatalog struct {
	byID   map[int64]*domain.GiftType
	byName map[string]*domain.GiftType
}

func (f *fakeCatalog) GiftTypeByID(_ context.Context, id int64) (*domain.GiftType, error) {
	if gt, ok := f.byID[id]; ok {
		return gt, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCatalog) GiftTypeByName(_ context.Context, name string) (*domain.GiftType, error) {
	if gt, ok := f.byName[name]; ok {
		return gt, nil
	}
	return nil, repository.ErrNotFound
}

func newTestCoalescer(t *testing.T) (*Coalescer, *feedtest.Source, *recordingSink) {
	t.Helper()
	rose := &domain.GiftType{ID: 7, Name: "Rose", IconURL: "https://cdn.example/rose.png", CoinCost: 10}
	catalog := &fakeCatalog{
		byID:   map[int64]*domain.GiftType{7: rose},
		byName: map[string]*domain.GiftType{"Rose": rose},
	}
	src := feedtest.NewSource()
	sink := &recordingSink{}
	c, err := NewCoalescer(src, catalog, sink, Config{DedupCapacity: 16, EnrichmentTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background(), streamID))
	t.Cleanup(c.Stop)
	return c, src, sink
}

func TestCoalescerNormalizesChatTypes(t *testing.T) {
	_, src, sink := newTestCoalescer(t)

	rows := []pubsub.ChatInsertedPayload{
		{ID: "1", Username: "amy", Content: "hi", MessageType: MessageText},
		{ID: "2", Username: "ben", MessageType: MessageFollow},
		{ID: "3", Content: "stream starting", MessageType: MessageSystem},
		{ID: "4", Content: "???", MessageType: "poll"},
	}
	for _, r := range rows {
		require.NoError(t, src.PushChat(streamID, r))
	}

	require.Eventually(t, func() bool { return sink.count() == 4 }, time.Second, 5*time.Millisecond)
	events := sink.snapshot()

	assert.Equal(t, domain.OverlayChat, events[0].Kind)
	assert.Equal(t, "chat-1", events[0].Key)
	assert.Equal(t, "hi", events[0].Chat.Text)
	assert.Equal(t, domain.OverlayFollow, events[1].Kind)
	assert.Equal(t, "ben", events[1].Follow.Username)
	assert.Equal(t, domain.OverlaySystem, events[2].Kind)
	assert.Equal(t, domain.OverlaySystem, events[3].Kind)
	assert.Equal(t, "???", events[3].System.Text)
}

func TestCoalescerDropsDuplicates(t *testing.T) {
	_, src, sink := newTestCoalescer(t)

	require.NoError(t, src.PushChat(streamID, pubsub.ChatInsertedPayload{ID: "1", MessageType: MessageText, Content: "a"}))
	require.NoError(t, src.PushChat(streamID, pubsub.ChatInsertedPayload{ID: "1", MessageType: MessageText, Content: "a"}))
	require.NoError(t, src.PushChat(streamID, pubsub.ChatInsertedPayload{ID: "2", MessageType: MessageText, Content: "b"}))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	events := sink.snapshot()
	assert.Equal(t, "chat-1", events[0].Key)
	assert.Equal(t, "chat-2", events[1].Key)
}

func TestCoalescerEnrichesLedgerGiftInPlace(t *testing.T) {
	_, src, sink := newTestCoalescer(t)

	require.NoError(t, src.PushGift(streamID, pubsub.GiftInsertedPayload{
		ID: "g1", SenderUsername: "amy", RecipientUsername: "host", GiftTypeID: 7, CoinAmount: 10,
	}))

	require.Eventually(t, func() bool {
		events := sink.snapshot()
		return len(events) == 1 && events[0].Gift.Enriched
	}, time.Second, 5*time.Millisecond)

	events := sink.snapshot()
	assert.Equal(t, 1, sink.count(), "enrichment must not re-emit")
	assert.Equal(t, "gift-g1", events[0].Key)
	assert.Equal(t, "Rose", events[0].Gift.GiftName)
	assert.Equal(t, "https://cdn.example/rose.png", events[0].Gift.IconURL)
}

func TestCoalescerEnrichesChatGiftByName(t *testing.T) {
	_, src, sink := newTestCoalescer(t)

	require.NoError(t, src.PushChat(streamID, pubsub.ChatInsertedPayload{
		ID: "9", Username: "amy", MessageType: MessageGift, Content: `amy sent "Rose" to host 💎+10`,
	}))

	require.Eventually(t, func() bool {
		events := sink.snapshot()
		return len(events) == 1 && events[0].Gift.Enriched
	}, time.Second, 5*time.Millisecond)

	g := sink.snapshot()[0].Gift
	assert.Equal(t, "Rose", g.GiftName)
	assert.Equal(t, "host", g.RecipientUsername)
	assert.Equal(t, int64(10), g.Diamonds)
}

func TestCoalescerEmitsBothGiftPaths(t *testing.T) {
	_, src, sink := newTestCoalescer(t)

	require.NoError(t, src.PushChat(streamID, pubsub.ChatInsertedPayload{
		ID: "9", MessageType: MessageGift, Content: `amy sent "Rose" to host 💎+10`,
	}))
	require.NoError(t, src.PushGift(streamID, pubsub.GiftInsertedPayload{ID: "9", GiftTypeID: 7}))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	keys := []string{}
	for _, e := range sink.snapshot() {
		keys = append(keys, e.Key)
	}
	assert.ElementsMatch(t, []string{"chat-9", "gift-9"}, keys)
}

func TestCoalescerEnrichmentMissKeepsGenericLabel(t *testing.T) {
	c, src, sink := newTestCoalescer(t)

	require.NoError(t, src.PushGift(streamID, pubsub.GiftInsertedPayload{ID: "g2", GiftTypeID: 404}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	// Stop waits for pending lookups.
	c.Stop()
	g := sink.snapshot()[0].Gift
	assert.Equal(t, "Gift", g.GiftName)
	assert.False(t, g.Enriched)
}

func TestCoalescerStopUnsubscribes(t *testing.T) {
	c, src, _ := newTestCoalescer(t)

	assert.True(t, src.Subscribed(streamID))
	c.Stop()
	c.Stop()

	assert.False(t, src.Subscribed(streamID))
	assert.ElementsMatch(t,
		[]string{pubsub.ChatInsertsChannel(streamID), pubsub.GiftInsertsChannel(streamID)},
		src.Closed())
	assert.Error(t, c.Start(context.Background(), streamID))
}
