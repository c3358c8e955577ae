package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/resolver"
	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

const (
	mailboxSize   = 64
	forgetTimeout = 2 * time.Second
)

// session is one viewer session. All fields below the mailbox are owned by
// the run goroutine.
type session struct {
	id      string
	gen     uint64
	partial domain.PartialIdentity
	deps    Deps
	publish func(gen uint64, s domain.Snapshot)
	now     func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mailbox chan func()
	stopCh  chan string
	done    chan struct{}

	state       domain.SessionState
	identity    *domain.StreamIdentity
	tracks      map[domain.TrackKind]domain.TrackBinding
	overlay     []domain.OverlayEvent
	viewerCount int
	countSource string
	endReason   string
	err         *domain.SessionError
	foreground  bool
	finished    bool

	adapter   transport.Adapter
	heartbeat Heartbeat
	coalescer Subscriber
	viewers   Subscriber
	status    *statusWatch
}

func newSession(parent context.Context, id string, gen uint64, partial domain.PartialIdentity, foreground bool, deps Deps, publish func(uint64, domain.Snapshot)) *session {
	ctx := log.WithLogger(context.Background(), log.Ctx(parent))
	ctx = log.WithSession(ctx, id, gen)
	ctx, cancel := context.WithCancel(ctx)
	if deps.TimelineSize <= 0 {
		deps.TimelineSize = 50
	}
	return &session{
		id:         id,
		gen:        gen,
		partial:    partial,
		deps:       deps,
		publish:    publish,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		mailbox:    make(chan func(), mailboxSize),
		stopCh:     make(chan string, 1),
		done:       make(chan struct{}),
		state:      domain.StateIdle,
		tracks:     make(map[domain.TrackKind]domain.TrackBinding),
		foreground: foreground,
	}
}

func (s *session) logger() *zerolog.Logger {
	l := log.Ctx(s.ctx)
	return &l
}

// post queues fn for the run goroutine. It reports false once the session
// has been torn down, which is how stale callbacks are discarded.
func (s *session) post(fn func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.mailbox <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// stop ends the session with reason and waits for teardown to finish.
func (s *session) stop(reason string) {
	select {
	case s.stopCh <- reason:
	default:
	}
	<-s.done
}

func (s *session) run() {
	defer close(s.done)

	s.setState(domain.StateResolving)
	go s.resolve()

	for !s.finished {
		select {
		case reason := <-s.stopCh:
			s.finish(domain.StateEnded, reason, nil)
		case fn := <-s.mailbox:
			if s.ctx.Err() != nil {
				continue
			}
			fn()
		}
	}
}

func (s *session) resolve() {
	identity, err := s.deps.Resolver.Resolve(s.ctx, s.partial)
	s.post(func() { s.onResolved(identity, err) })
}

func (s *session) onResolved(identity domain.StreamIdentity, err error) {
	if s.state != domain.StateResolving {
		return
	}
	switch {
	case errors.Is(err, resolver.ErrStreamOffline):
		s.identity = &identity
		s.fail(domain.ErrCodeStreamOffline, "stream is not live", err)
		return
	case errors.Is(err, resolver.ErrIdentityUnresolved):
		s.fail(domain.ErrCodeIdentityUnresolved, "stream could not be found", err)
		return
	case errors.Is(err, context.Canceled):
		// torn down while resolving
		return
	case err != nil:
		s.fail(domain.ErrCodeInternal, "stream lookup failed", err)
		return
	}
	if !identity.Live() {
		s.identity = &identity
		s.fail(domain.ErrCodeStreamOffline, "stream is not live", resolver.ErrStreamOffline)
		return
	}

	s.identity = &identity
	s.adapter = s.deps.Factories.Adapter(s.id, s)
	s.setState(domain.StateConnecting)

	adapter := s.adapter
	go func() {
		if err := adapter.Connect(s.ctx, identity); err != nil {
			s.post(func() { s.onConnectFailed(err) })
		}
	}()
}

func (s *session) onConnectFailed(err error) {
	if s.state != domain.StateConnecting {
		return
	}
	var credErr *transport.CredentialError
	var connErr *transport.ConnectError
	switch {
	case errors.As(err, &credErr):
		s.fail(domain.ErrCodeCredential, "could not obtain room credentials", err)
	case errors.As(err, &connErr):
		s.fail(domain.ErrCodeConnect, "could not join the stream", err)
	case errors.Is(err, transport.ErrAdapterClosed), errors.Is(err, context.Canceled):
		// torn down while connecting
	default:
		s.fail(domain.ErrCodeConnect, "could not join the stream", err)
	}
}

// onConnected is the only place the live-session collaborators start.
func (s *session) onConnected() {
	if s.state != domain.StateConnecting || s.identity == nil {
		return
	}
	streamID := s.identity.StreamID()
	s.setStateQuiet(domain.StateConnected)

	if f := s.deps.Factories.Heartbeat; f != nil {
		s.heartbeat = f()
		if err := s.heartbeat.Start(s.ctx, streamID, s.deps.Viewer.ViewerID, s.foreground); err != nil {
			s.logger().Warn().Err(err).Msg("Failed to start presence heartbeat")
		}
	}
	if f := s.deps.Factories.Coalescer; f != nil {
		c, err := f(s)
		if err == nil {
			err = c.Start(s.ctx, streamID)
		}
		if err != nil {
			s.logger().Warn().Err(err).Msg("Failed to start overlay feed")
		} else {
			s.coalescer = c
		}
	}
	if f := s.deps.Factories.ViewerCount; f != nil {
		v := f(s)
		if err := v.Start(s.ctx, streamID); err != nil {
			s.logger().Warn().Err(err).Msg("Failed to start viewer count")
		} else {
			s.viewers = v
		}
	}
	if s.deps.Feeds != nil {
		w, err := startStatusWatch(s.ctx, s.deps.Feeds, streamID, func() {
			s.post(func() { s.onStreamEnded() })
		})
		if err != nil {
			s.logger().Warn().Err(err).Msg("Failed to watch stream status")
		} else {
			s.status = w
		}
	}

	s.logger().Info().Int64(log.FieldLiveStreamID, streamID).Msg("Viewer session connected")
	s.emit()
}

func (s *session) onDisconnected(reason string) {
	if !s.state.Live() {
		return
	}
	s.finish(domain.StateEnded, reason, nil)
}

func (s *session) onStreamEnded() {
	if s.state.Terminal() {
		return
	}
	if s.identity != nil {
		identity := *s.identity
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
			defer cancel()
			s.deps.Resolver.Forget(ctx, identity)
		}()
	}
	s.finish(domain.StateEnded, domain.ReasonStreamEnded, nil)
}

func (s *session) setForeground(fg bool) {
	s.foreground = fg
	if s.heartbeat != nil {
		s.heartbeat.SetForeground(fg)
	}
}

func (s *session) fail(code, message string, cause error) {
	s.logger().Warn().Err(cause).Str("code", code).Msg("Viewer session failed")
	s.finish(domain.StateErrored, "", &domain.SessionError{Code: code, Message: message, Retryable: true})
}

// finish tears the session down in a fixed order: presence first so the
// viewer stops counting, then the feeds, then the media connection.
func (s *session) finish(state domain.SessionState, reason string, sessErr *domain.SessionError) {
	if s.finished {
		return
	}
	s.finished = true
	s.cancel()

	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	if s.coalescer != nil {
		s.coalescer.Stop()
	}
	if s.viewers != nil {
		s.viewers.Stop()
	}
	if s.status != nil {
		s.status.Stop()
	}
	if s.adapter != nil {
		s.adapter.Disconnect()
	}

	s.tracks = make(map[domain.TrackKind]domain.TrackBinding)
	s.endReason = reason
	s.err = sessErr
	s.logger().Info().Str(log.FieldState, string(state)).Str(log.FieldReason, reason).Msg("Viewer session finished")
	s.setState(state)
}

func (s *session) setState(state domain.SessionState) {
	s.state = state
	s.emit()
}

func (s *session) setStateQuiet(state domain.SessionState) {
	s.state = state
}

func (s *session) emit() {
	s.publish(s.gen, s.snapshot())
}

func (s *session) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:         s.id,
		State:             s.state,
		Tracks:            make([]domain.TrackBinding, 0, len(s.tracks)),
		Overlay:           make([]domain.OverlayEvent, len(s.overlay)),
		ViewerCount:       s.viewerCount,
		ViewerCountSource: s.countSource,
		EndReason:         s.endReason,
		UpdatedAt:         s.now(),
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	for _, kind := range []domain.TrackKind{domain.TrackVideo, domain.TrackAudio} {
		if b, ok := s.tracks[kind]; ok {
			snap.Tracks = append(snap.Tracks, b)
		}
	}
	for i, e := range s.overlay {
		snap.Overlay[i] = e.Clone()
	}
	if s.err != nil {
		e := *s.err
		snap.Error = &e
	}
	return snap
}
