// Package viewercount keeps the displayed audience size for a live stream
// current, from a periodic count and from the viewer-change feed.
package viewercount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// Counter counts active viewers of a stream.
type Counter interface {
	CountActiveViewers(ctx context.Context, liveStreamID int64) (int, error)
}

// Sink receives viewer counts. The newest value wins regardless of source.
type Sink interface {
	SetViewerCount(n int, source string)
}

type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type Tracker struct {
	counter Counter
	source  feed.Source
	sink    Sink
	clock   clockwork.Clock
	cfg     Config

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewTracker(counter Counter, source feed.Source, sink Sink, clock clockwork.Clock, cfg Config) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Tracker{counter: counter, source: source, sink: sink, clock: clock, cfg: cfg}
}

// Start polls once immediately, then every PollInterval, and forwards feed
// updates as they arrive.
func (t *Tracker) Start(ctx context.Context, liveStreamID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("viewer count tracker already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := t.source.ViewerCounts(ctx, liveStreamID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe viewer counts: %w", err)
	}
	t.started = true
	t.cancel = cancel

	t.wg.Add(2)
	go t.poll(ctx, liveStreamID)
	go func() {
		defer t.wg.Done()
		defer func() {
			if err := sub.Close(); err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldChannel, sub.Channel()).Msg("Failed to close viewer feed")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case row, ok := <-sub.C:
				if !ok {
					return
				}
				t.sink.SetViewerCount(row.ViewerCount, domain.ViewerCountFromFeed)
			}
		}
	}()
	return nil
}

// Stop cancels polling, unsubscribes the feed and waits for both.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		t.wg.Wait()
	})
}

func (t *Tracker) poll(ctx context.Context, liveStreamID int64) {
	defer t.wg.Done()

	ticker := t.clock.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	t.pollOnce(ctx, liveStreamID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.pollOnce(ctx, liveStreamID)
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context, liveStreamID int64) {
	pctx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	n, err := t.counter.CountActiveViewers(pctx, liveStreamID)
	if err != nil {
		if ctx.Err() == nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Int64(log.FieldLiveStreamID, liveStreamID).Msg("Viewer count poll failed")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	t.sink.SetViewerCount(n, domain.ViewerCountFromPoll)
}
