// Package presence keeps a viewer's row in the backend presence table fresh
// while a session is live.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/store"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

var ErrHeartbeatStarted = errors.New("heartbeat already started")

type Config struct {
	Interval     time.Duration
	WriteTimeout time.Duration
}

// Heartbeat writes an active marker every Interval while the app is in the
// foreground, and a single inactive marker when it moves to the background.
// A Heartbeat is bound to one (viewer, stream) pair and used once.
type Heartbeat struct {
	store store.PresenceStore
	clock clockwork.Clock
	cfg   Config

	mu           sync.Mutex
	started      bool
	viewerID     string
	liveStreamID int64
	cancel       context.CancelFunc
	reqs         chan bool
	done         chan struct{}
	stopOnce     sync.Once
}

func NewHeartbeat(s store.PresenceStore, clock clockwork.Clock, cfg Config) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Heartbeat{
		store: s,
		clock: clock,
		cfg:   cfg,
		reqs:  make(chan bool, 1),
		done:  make(chan struct{}),
	}
}

// Start writes the first marker immediately and begins the refresh loop.
func (h *Heartbeat) Start(ctx context.Context, liveStreamID int64, viewerID string, foreground bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrHeartbeatStarted
	}
	h.started = true
	h.viewerID = viewerID
	h.liveStreamID = liveStreamID

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go h.run(ctx, foreground)
	return nil
}

// SetForeground reports an app visibility change and never blocks. Only the
// latest pending value is kept; the loop compares it with the state it last
// wrote, so only transitions cause writes.
func (h *Heartbeat) SetForeground(foreground bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}

	// The slot is drained under mu, so the send below always has room.
	select {
	case <-h.reqs:
	default:
	}
	h.reqs <- foreground
}

// Stop halts the loop and removes the presence row. The delete is best
// effort; a failure only means the row ages out of the staleness window.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		started, cancel := h.started, h.cancel
		h.mu.Unlock()
		if !started {
			return
		}
		cancel()
		<-h.done

		ctx, cancelDelete := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
		defer cancelDelete()
		if err := h.store.Delete(ctx, h.viewerID, h.liveStreamID); err != nil {
			l := log.L()
			l.Warn().Err(err).
				Str(log.FieldViewerID, h.viewerID).
				Int64(log.FieldLiveStreamID, h.liveStreamID).
				Msg("Failed to delete presence")
		}
	})
}

func (h *Heartbeat) run(ctx context.Context, foreground bool) {
	defer close(h.done)

	var ticker clockwork.Ticker
	var tick <-chan time.Time
	startTicker := func() {
		ticker = h.clock.NewTicker(h.cfg.Interval)
		tick = ticker.Chan()
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	h.write(ctx, foreground)
	if foreground {
		startTicker()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			h.write(ctx, true)
		case fg := <-h.reqs:
			if fg == foreground {
				continue
			}
			foreground = fg
			if foreground {
				h.write(ctx, true)
				startTicker()
			} else {
				stopTicker()
				h.write(ctx, false)
			}
		}
	}
}

func (h *Heartbeat) write(ctx context.Context, active bool) {
	wctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()

	record := domain.NewPresenceRecord(h.viewerID, h.liveStreamID, active, h.clock.Now())
	if err := h.store.Upsert(wctx, record); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldViewerID, h.viewerID).
			Int64(log.FieldLiveStreamID, h.liveStreamID).
			Bool(log.FieldForeground, active).
			Msg("Presence heartbeat write failed")
	}
}
