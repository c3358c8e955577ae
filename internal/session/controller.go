// Package session runs viewer sessions: it resolves the target stream,
// joins its media room, and keeps presence, overlay and audience size in
// step with the room for exactly as long as the session is live.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

var (
	ErrNoSession     = errors.New("no viewer session")
	ErrEmptyIdentity = errors.New("a username, live stream id or profile id is required")
	ErrClosed        = errors.New("controller closed")
)

// Controller owns at most one session at a time. Opening a session first
// tears the previous one down completely.
type Controller struct {
	deps  Deps
	bcast *broadcaster

	// opMu serialises Open and Close.
	opMu sync.Mutex

	mu         sync.Mutex
	current    *session
	generation uint64
	foreground bool
	closed     bool
}

func NewController(deps Deps) *Controller {
	return &Controller{
		deps:       deps,
		bcast:      newBroadcaster(domain.Snapshot{State: domain.StateIdle, UpdatedAt: time.Now()}),
		foreground: true,
	}
}

// Open starts a session for partial and returns its id. Resolution and
// connection continue in the background; progress is visible through
// Watch and Snapshot.
func (c *Controller) Open(ctx context.Context, partial domain.PartialIdentity) (string, error) {
	if partial.Empty() {
		return "", ErrEmptyIdentity
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	prev := c.current
	// Bumping the generation first silences the previous session.
	c.generation++
	gen := c.generation
	c.current = nil
	c.mu.Unlock()

	if prev != nil {
		prev.stop(domain.ReasonSuperseded)
	}

	id := ulid.Make().String()
	c.mu.Lock()
	s := newSession(ctx, id, gen, partial, c.foreground, c.deps, c.publish)
	c.current = s
	c.mu.Unlock()

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldSessionID, id).
		Uint64(log.FieldGeneration, gen).
		Str("target", partial.String()).
		Msg("Opening viewer session")

	go s.run()
	return id, nil
}

// Close ends the current session.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	s.stop(domain.ReasonClosed)
	return nil
}

// Shutdown closes the current session and refuses new ones.
func (c *Controller) Shutdown() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.closed = true
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.stop(domain.ReasonClosed)
	}
}

// SetForeground records app visibility. It applies to the live session and
// to every session opened later.
func (c *Controller) SetForeground(fg bool) {
	c.mu.Lock()
	c.foreground = fg
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.post(func() { s.setForeground(fg) })
	}
}

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() domain.Snapshot {
	return c.bcast.snapshot()
}

// Watch streams snapshots until ctx is done. Slow readers only see the
// newest snapshot.
func (c *Controller) Watch(ctx context.Context) <-chan domain.Snapshot {
	return c.bcast.watch(ctx)
}

// publish drops snapshots from superseded sessions.
func (c *Controller) publish(gen uint64, s domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.bcast.publish(s)
}
