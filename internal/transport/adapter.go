package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/jwt"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

const (
	viewerRole      = "viewer"
	soloRoomPrefix  = "solo_"
	defaultRoomName = "live_central"
)

type Config struct {
	Viewer    domain.ViewerIdentity
	SessionID string
	// GroupRoomName is the shared room every group stream broadcasts in.
	GroupRoomName            string
	ExcludedIdentityPrefixes []string
	AllowedSchemes           []string
	Leeway                   time.Duration
}

type adapterState int

const (
	stateIdle adapterState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// RoomAdapter implements Adapter for a single viewer session.
type RoomAdapter struct {
	cfg       Config
	fetcher   TokenFetcher
	newRoom   RoomFactory
	listener  Listener
	validator *credentialValidator
	group     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	// emitMu serialises listener calls and lets Disconnect wait for an
	// in-flight callback before returning.
	emitMu sync.Mutex

	mu           sync.Mutex
	state        adapterState
	disconnected bool
	room         Room
	pending      []domain.TrackBinding
}

func NewAdapter(cfg Config, fetcher TokenFetcher, newRoom RoomFactory, listener Listener) *RoomAdapter {
	if cfg.GroupRoomName == "" {
		cfg.GroupRoomName = defaultRoomName
	}
	if cfg.ExcludedIdentityPrefixes == nil {
		cfg.ExcludedIdentityPrefixes = []string{"anon_", "guest_", "viewer_"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomAdapter{
		cfg:       cfg,
		fetcher:   fetcher,
		newRoom:   newRoom,
		listener:  listener,
		validator: newCredentialValidator(jwt.NewInspector(cfg.Leeway), cfg.AllowedSchemes),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RoomName returns the room a stream is broadcast in.
func RoomName(identity domain.StreamIdentity, groupRoom string) string {
	if identity.Mode == domain.StreamModeGroup {
		return groupRoom
	}
	return soloRoomPrefix + identity.ProfileID
}

// Connect joins the room of identity. Concurrent calls share one attempt.
// Cancelling ctx abandons the wait but not the attempt; use Disconnect for
// that.
func (a *RoomAdapter) Connect(ctx context.Context, identity domain.StreamIdentity) error {
	a.mu.Lock()
	switch a.state {
	case stateClosed:
		a.mu.Unlock()
		return ErrAdapterClosed
	case stateConnected:
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	ch := a.group.DoChan("connect", func() (interface{}, error) {
		return nil, a.connect(identity)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *RoomAdapter) connect(identity domain.StreamIdentity) error {
	a.mu.Lock()
	switch a.state {
	case stateClosed:
		a.mu.Unlock()
		return ErrAdapterClosed
	case stateConnected:
		a.mu.Unlock()
		return nil
	}
	a.state = stateConnecting
	a.mu.Unlock()

	roomName := RoomName(identity, a.cfg.GroupRoomName)
	l := log.Ctx(a.ctx).With().
		Str(log.FieldRoomName, roomName).
		Str(log.FieldSessionID, a.cfg.SessionID).
		Logger()

	cred, err := a.fetcher.FetchToken(a.ctx, TokenRequest{
		RoomName:            roomName,
		ParticipantName:     a.cfg.Viewer.DisplayName,
		ParticipantIdentity: a.cfg.Viewer.ParticipantIdentity(a.cfg.SessionID),
		CanPublish:          false,
		CanSubscribe:        true,
		DeviceType:          a.cfg.Viewer.Platform,
		DeviceID:            a.cfg.Viewer.DeviceID,
		SessionID:           a.cfg.SessionID,
		Role:                viewerRole,
	})
	if err != nil {
		return a.fail(&CredentialError{Err: err})
	}
	if err := a.validator.validate(cred, roomName); err != nil {
		return a.fail(&CredentialError{Err: err})
	}

	room := a.newRoom(RoomEvents{
		OnDisconnected:      a.roomDisconnected,
		OnReconnecting:      a.roomReconnecting,
		OnReconnected:       a.roomReconnected,
		OnTrackSubscribed:   a.trackSubscribed,
		OnTrackUnsubscribed: a.trackUnsubscribed,
	})

	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return ErrAdapterClosed
	}
	a.room = room
	a.mu.Unlock()

	if err := room.Connect(a.ctx, cred.URL, cred.Token); err != nil {
		room.Disconnect()
		a.mu.Lock()
		if a.room == room {
			a.room = nil
		}
		a.mu.Unlock()
		return a.fail(&ConnectError{Err: err})
	}

	a.emitMu.Lock()
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		a.emitMu.Unlock()
		// Disconnect raced the handshake.
		room.Disconnect()
		return ErrAdapterClosed
	}
	a.state = stateConnected
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	l.Info().Msg("Room connected")
	a.listener.OnConnected()
	for _, b := range pending {
		a.listener.OnTrackSubscribed(b)
	}
	a.emitMu.Unlock()
	return nil
}

// fail resets a failed attempt so Connect may be retried, unless the
// adapter was closed meanwhile.
func (a *RoomAdapter) fail(err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateClosed || a.ctx.Err() != nil {
		return ErrAdapterClosed
	}
	a.state = stateIdle
	a.pending = nil
	return err
}

// Disconnect leaves the room and cancels any attempt in flight. No listener
// call is made once it returns.
func (a *RoomAdapter) Disconnect() {
	a.mu.Lock()
	if a.disconnected {
		a.mu.Unlock()
		return
	}
	a.disconnected = true
	a.state = stateClosed
	room := a.room
	a.room = nil
	a.pending = nil
	a.mu.Unlock()

	a.cancel()
	if room != nil {
		room.Disconnect()
	}

	// wait out a callback already being delivered
	a.emitMu.Lock()
	a.emitMu.Unlock()
}

func (a *RoomAdapter) Participants() []string {
	a.mu.Lock()
	room := a.room
	a.mu.Unlock()
	if room == nil {
		return nil
	}

	all := room.Participants()
	out := make([]string, 0, len(all))
	for _, id := range all {
		if !a.excluded(id) {
			out = append(out, id)
		}
	}
	return out
}

func (a *RoomAdapter) excluded(identity string) bool {
	for _, p := range a.cfg.ExcludedIdentityPrefixes {
		if p != "" && strings.HasPrefix(identity, p) {
			return true
		}
	}
	return false
}

// emitConnected runs fn under the emit lock if the adapter is connected.
func (a *RoomAdapter) emitConnected(fn func()) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	connected := a.state == stateConnected
	a.mu.Unlock()
	if connected {
		fn()
	}
}

func (a *RoomAdapter) roomDisconnected(reason string) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if a.state != stateConnected {
		a.mu.Unlock()
		return
	}
	// the room stays referenced so Disconnect still releases it
	a.state = stateClosed
	a.mu.Unlock()
	a.cancel()

	l := log.Ctx(a.ctx)

	l.Info().Str(log.FieldReason, reason).Str(log.FieldSessionID, a.cfg.SessionID).Msg("Room disconnected")
	a.listener.OnDisconnected(reason)
}

func (a *RoomAdapter) roomReconnecting() {
	a.emitConnected(a.listener.OnReconnecting)
}

func (a *RoomAdapter) roomReconnected() {
	a.emitConnected(a.listener.OnReconnected)
}

func (a *RoomAdapter) trackSubscribed(b domain.TrackBinding) {
	if a.excluded(b.OwnerIdentity) {
		return
	}

	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	switch a.state {
	case stateConnecting:
		a.pending = append(a.pending, b)
		a.mu.Unlock()
	case stateConnected:
		a.mu.Unlock()
		a.listener.OnTrackSubscribed(b)
	default:
		a.mu.Unlock()
	}
}

func (a *RoomAdapter) trackUnsubscribed(b domain.TrackBinding) {
	if a.excluded(b.OwnerIdentity) {
		return
	}

	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	switch a.state {
	case stateConnecting:
		kept := a.pending[:0]
		for _, p := range a.pending {
			if !p.Same(b) {
				kept = append(kept, p)
			}
		}
		a.pending = kept
		a.mu.Unlock()
	case stateConnected:
		a.mu.Unlock()
		a.listener.OnTrackUnsubscribed(b)
	default:
		a.mu.Unlock()
	}
}
