// Package overlay turns the chat and gift change feeds of a live stream into
// a deduplicated, ordered sequence of overlay events.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/internal/repository"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

// Chat message types written by the backend.
const (
	MessageText   = "text"
	MessageGift   = "gift"
	MessageFollow = "follow"
	MessageSystem = "system"
)

// Sink receives overlay events. Update mutates an already emitted event in
// place and must be a no-op when the key is no longer held.
type Sink interface {
	Emit(event domain.OverlayEvent)
	Update(key string, fn func(*domain.OverlayEvent))
}

type Config struct {
	DedupCapacity     int
	EnrichmentTimeout time.Duration
	GenericGiftLabel  string
}

// Coalescer consumes the feeds of a single live stream. It is single use:
// one Start, one Stop.
type Coalescer struct {
	source  feed.Source
	catalog repository.GiftCatalog
	sink    Sink
	cfg     Config
	dedup   *Dedup
	now     func() time.Time

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	chat     *feed.Subscription[pubsub.ChatInsertedPayload]
	gifts    *feed.Subscription[pubsub.GiftInsertedPayload]
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewCoalescer(source feed.Source, catalog repository.GiftCatalog, sink Sink, cfg Config) (*Coalescer, error) {
	if cfg.EnrichmentTimeout <= 0 {
		cfg.EnrichmentTimeout = 5 * time.Second
	}
	if cfg.GenericGiftLabel == "" {
		cfg.GenericGiftLabel = "Gift"
	}
	dedup, err := NewDedup(cfg.DedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("overlay dedup: %w", err)
	}
	return &Coalescer{
		source:  source,
		catalog: catalog,
		sink:    sink,
		cfg:     cfg,
		dedup:   dedup,
		now:     time.Now,
	}, nil
}

// Start subscribes to the chat and gift feeds of liveStreamID.
func (c *Coalescer) Start(ctx context.Context, liveStreamID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("overlay coalescer already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	chat, err := c.source.ChatInserts(ctx, liveStreamID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe chat inserts: %w", err)
	}
	gifts, err := c.source.GiftInserts(ctx, liveStreamID)
	if err != nil {
		_ = chat.Close()
		cancel()
		return fmt.Errorf("subscribe gift inserts: %w", err)
	}

	c.started = true
	c.cancel = cancel
	c.chat = chat
	c.gifts = gifts

	c.wg.Add(1)
	go c.consume(ctx, chat.C, gifts.C)
	return nil
}

// Stop unsubscribes both feeds and waits for the consumer and any pending
// enrichment. Results that arrive afterwards are dropped.
func (c *Coalescer) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel, chat, gifts := c.cancel, c.chat, c.gifts
		c.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		if err := chat.Close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldChannel, chat.Channel()).Msg("Failed to close chat feed")
		}
		if err := gifts.Close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldChannel, gifts.Channel()).Msg("Failed to close gift feed")
		}
		c.wg.Wait()
	})
}

func (c *Coalescer) consume(ctx context.Context, chat <-chan pubsub.ChatInsertedPayload, gifts <-chan pubsub.GiftInsertedPayload) {
	defer c.wg.Done()
	for chat != nil || gifts != nil {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-chat:
			if !ok {
				chat = nil
				continue
			}
			c.handleChat(ctx, row)
		case row, ok := <-gifts:
			if !ok {
				gifts = nil
				continue
			}
			c.handleGift(ctx, row)
		}
	}
}

func (c *Coalescer) handleChat(ctx context.Context, row pubsub.ChatInsertedPayload) {
	key := domain.ChatKey(row.ID)
	if !c.dedup.Add(key) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldDedupKey, key).Msg("Duplicate overlay event dropped")
		return
	}

	event := domain.OverlayEvent{Key: key, ReceivedAt: c.now()}
	switch row.MessageType {
	case MessageText:
		event.Kind = domain.OverlayChat
		event.Chat = &domain.ChatEvent{ID: row.ID, Username: row.Username, Text: row.Content, Tier: row.Tier}
	case MessageGift:
		event.Kind = domain.OverlayGift
		gift := &domain.GiftEvent{ID: row.ID, GiftName: c.cfg.GenericGiftLabel, SenderUsername: row.Username}
		ann, ok := ParseGiftAnnouncement(row.Content)
		if ok {
			gift.GiftName = ann.GiftName
			gift.SenderUsername = ann.Sender
			gift.RecipientUsername = ann.Recipient
			gift.Diamonds = ann.Diamonds
		}
		event.Gift = gift
		c.sink.Emit(event)
		if ok {
			name := ann.GiftName
			c.enrich(ctx, key, func(ctx context.Context) (*domain.GiftType, error) {
				return c.catalog.GiftTypeByName(ctx, name)
			})
		}
		return
	case MessageFollow:
		event.Kind = domain.OverlayFollow
		event.Follow = &domain.FollowEvent{ID: row.ID, Username: row.Username}
	default:
		event.Kind = domain.OverlaySystem
		event.System = &domain.SystemEvent{ID: row.ID, Text: row.Content}
	}
	c.sink.Emit(event)
}

func (c *Coalescer) handleGift(ctx context.Context, row pubsub.GiftInsertedPayload) {
	key := domain.GiftKey(row.ID)
	if !c.dedup.Add(key) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldDedupKey, key).Msg("Duplicate overlay event dropped")
		return
	}

	c.sink.Emit(domain.OverlayEvent{
		Key:        key,
		Kind:       domain.OverlayGift,
		ReceivedAt: c.now(),
		Gift: &domain.GiftEvent{
			ID:                row.ID,
			GiftName:          c.cfg.GenericGiftLabel,
			SenderUsername:    row.SenderUsername,
			RecipientUsername: row.RecipientUsername,
			CoinAmount:        row.CoinAmount,
		},
	})

	typeID := row.GiftTypeID
	c.enrich(ctx, key, func(ctx context.Context) (*domain.GiftType, error) {
		return c.catalog.GiftTypeByID(ctx, typeID)
	})
}

// enrich looks up gift metadata off the consumer goroutine and patches the
// emitted event when the lookup succeeds.
func (c *Coalescer) enrich(ctx context.Context, key string, lookup func(context.Context) (*domain.GiftType, error)) {
	if c.catalog == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		lctx, cancel := context.WithTimeout(ctx, c.cfg.EnrichmentTimeout)
		defer cancel()

		gt, err := lookup(lctx)
		if err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Str(log.FieldDedupKey, key).Msg("Gift enrichment miss")
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.sink.Update(key, func(e *domain.OverlayEvent) {
			if e.Gift == nil {
				return
			}
			e.Gift.GiftName = gt.Name
			e.Gift.IconURL = gt.IconURL
			if e.Gift.CoinAmount == 0 {
				e.Gift.CoinAmount = gt.CoinCost
			}
			e.Gift.Enriched = true
		})
	}()
}
