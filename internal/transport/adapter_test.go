package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/jwt"
)

func signToken(t *testing.T, room string, exp time.Time) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(exp)},
		Video:            &jwt.VideoGrant{Room: room, RoomJoin: true},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingListener) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) OnConnected()               { l.add("connected") }
func (l *recordingListener) OnDisconnected(r string)    { l.add("disconnected:" + r) }
func (l *recordingListener) OnReconnecting()            { l.add("reconnecting") }
func (l *recordingListener) OnReconnected()             { l.add("reconnected") }
func (l *recordingListener) OnTrackSubscribed(b domain.TrackBinding) {
	l.add("subscribed:" + string(b.Kind) + ":" + b.OwnerIdentity)
}
func (l *recordingListener) OnTrackUnsubscribed(b domain.TrackBinding) {
	l.add("unsubscribed:" + string(b.Kind) + ":" + b.OwnerIdentity)
}

type fakeFetcher struct {
	calls atomic.Int32
	fetch func(ctx context.Context, req TokenRequest) (*Credential, error)
	last  atomic.Pointer[TokenRequest]
}

func (f *fakeFetcher) FetchToken(ctx context.Context, req TokenRequest) (*Credential, error) {
	f.calls.Add(1)
	f.last.Store(&req)
	return f.fetch(ctx, req)
}

type fakeRoom struct {
	events       RoomEvents
	connect      func(ctx context.Context, r *fakeRoom) error
	disconnects  atomic.Int32
	participants []string
}

func (r *fakeRoom) Connect(ctx context.Context, _, _ string) error {
	if r.connect == nil {
		return nil
	}
	return r.connect(ctx, r)
}

func (r *fakeRoom) Disconnect()            { r.disconnects.Add(1) }
func (r *fakeRoom) Participants() []string { return r.participants }

type harness struct {
	adapter  *RoomAdapter
	fetcher  *fakeFetcher
	room     *fakeRoom
	listener *recordingListener
}

var soloIdentity = domain.StreamIdentity{ProfileID: "p1", Username: "host", LiveStreamID: domain.Int64Ptr(42), Mode: domain.StreamModeSolo}

func newHarness(t *testing.T, room *fakeRoom) *harness {
	t.Helper()
	token := signToken(t, "solo_p1", time.Now().Add(time.Hour))
	h := &harness{
		fetcher: &fakeFetcher{fetch: func(context.Context, TokenRequest) (*Credential, error) {
			return &Credential{Token: token, URL: "wss://media.example/whep"}, nil
		}},
		room:     room,
		listener: &recordingListener{},
	}
	h.adapter = NewAdapter(Config{
		Viewer:    domain.ViewerIdentity{ViewerID: "v1", DisplayName: "Viewer", Platform: "mobile", DeviceID: "d1"},
		SessionID: "s1",
	}, h.fetcher, func(events RoomEvents) Room {
		room.events = events
		return room
	}, h.listener)
	t.Cleanup(h.adapter.Disconnect)
	return h
}

func TestConnectHappyPath(t *testing.T) {
	h := newHarness(t, &fakeRoom{})

	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))
	assert.Equal(t, []string{"connected"}, h.listener.all())

	req := h.fetcher.last.Load()
	require.NotNil(t, req)
	assert.Equal(t, "solo_p1", req.RoomName)
	assert.Equal(t, "u_v1:mobile:d1:s1", req.ParticipantIdentity)
	assert.Equal(t, "viewer", req.Role)
	assert.False(t, req.CanPublish)
	assert.True(t, req.CanSubscribe)

	// already connected
	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "solo_p1", RoomName(soloIdentity, "live_central"))
	group := soloIdentity
	group.Mode = domain.StreamModeGroup
	assert.Equal(t, "live_central", RoomName(group, "live_central"))
}

func TestConnectCredentialErrors(t *testing.T) {
	valid := signToken(t, "solo_p1", time.Now().Add(time.Hour))
	expired := signToken(t, "solo_p1", time.Now().Add(-time.Hour))

	tests := []struct {
		name string
		cred *Credential
		err  error
	}{
		{name: "fetch failure", err: errors.New("503")},
		{name: "empty token", cred: &Credential{Token: "", URL: "wss://m.example"}},
		{name: "not a jwt", cred: &Credential{Token: "abc", URL: "wss://m.example"}},
		{name: "expired", cred: &Credential{Token: expired, URL: "wss://m.example"}},
		{name: "plain http", cred: &Credential{Token: valid, URL: "http://m.example"}},
		{name: "missing host", cred: &Credential{Token: valid, URL: "wss://"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := &fakeRoom{}
			h := newHarness(t, room)
			h.fetcher.fetch = func(context.Context, TokenRequest) (*Credential, error) { return tt.cred, tt.err }

			err := h.adapter.Connect(context.Background(), soloIdentity)
			var credErr *CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Empty(t, h.listener.all())
			assert.Nil(t, room.events.OnDisconnected, "room must not be created")
		})
	}
}

func TestConnectHandshakeFailure(t *testing.T) {
	room := &fakeRoom{connect: func(context.Context, *fakeRoom) error { return errors.New("ice failed") }}
	h := newHarness(t, room)

	err := h.adapter.Connect(context.Background(), soloIdentity)
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, int32(1), room.disconnects.Load())
	assert.Empty(t, h.listener.all())
}

func TestTracksBufferedUntilConnected(t *testing.T) {
	room := &fakeRoom{connect: func(_ context.Context, r *fakeRoom) error {
		r.events.OnTrackSubscribed(domain.TrackBinding{Kind: domain.TrackVideo, OwnerIdentity: "u_host", TrackID: "v"})
		r.events.OnTrackSubscribed(domain.TrackBinding{Kind: domain.TrackAudio, OwnerIdentity: "guest_9", TrackID: "a"})
		r.events.OnTrackSubscribed(domain.TrackBinding{Kind: domain.TrackAudio, OwnerIdentity: "u_host", TrackID: "a"})
		r.events.OnTrackUnsubscribed(domain.TrackBinding{Kind: domain.TrackAudio, OwnerIdentity: "u_host", TrackID: "a"})
		return nil
	}}
	h := newHarness(t, room)

	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))
	assert.Equal(t, []string{"connected", "subscribed:video:u_host"}, h.listener.all())
}

func TestExcludedIdentitiesFiltered(t *testing.T) {
	room := &fakeRoom{participants: []string{"u_host", "anon_1", "viewer_2", "u_cohost"}}
	h := newHarness(t, room)
	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))

	room.events.OnTrackSubscribed(domain.TrackBinding{Kind: domain.TrackVideo, OwnerIdentity: "anon_1"})
	assert.Equal(t, []string{"connected"}, h.listener.all())
	assert.Equal(t, []string{"u_host", "u_cohost"}, h.adapter.Participants())
}

func TestRoomEventsForwardedWhileConnected(t *testing.T) {
	room := &fakeRoom{}
	h := newHarness(t, room)
	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))

	room.events.OnReconnecting()
	room.events.OnReconnected()
	room.events.OnDisconnected("server_shutdown")
	room.events.OnDisconnected("again")

	assert.Equal(t, []string{"connected", "reconnecting", "reconnected", "disconnected:server_shutdown"}, h.listener.all())
	assert.ErrorIs(t, h.adapter.Connect(context.Background(), soloIdentity), ErrAdapterClosed)

	h.adapter.Disconnect()
	assert.Equal(t, int32(1), room.disconnects.Load())
}

func TestDisconnectSuppressesEvents(t *testing.T) {
	room := &fakeRoom{}
	h := newHarness(t, room)
	require.NoError(t, h.adapter.Connect(context.Background(), soloIdentity))

	h.adapter.Disconnect()
	h.adapter.Disconnect()
	room.events.OnTrackSubscribed(domain.TrackBinding{Kind: domain.TrackVideo, OwnerIdentity: "u_host"})
	room.events.OnDisconnected("closed")

	assert.Equal(t, []string{"connected"}, h.listener.all())
	assert.Equal(t, int32(1), room.disconnects.Load())
	assert.ErrorIs(t, h.adapter.Connect(context.Background(), soloIdentity), ErrAdapterClosed)
}

func TestDisconnectCancelsCredentialFetch(t *testing.T) {
	h := newHarness(t, &fakeRoom{})
	started := make(chan struct{})
	h.fetcher.fetch = func(ctx context.Context, _ TokenRequest) (*Credential, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	errc := make(chan error, 1)
	go func() { errc <- h.adapter.Connect(context.Background(), soloIdentity) }()
	<-started
	h.adapter.Disconnect()

	assert.ErrorIs(t, <-errc, ErrAdapterClosed)
	assert.Empty(t, h.listener.all())
}

func TestDisconnectDuringHandshakeClosesRoom(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	room := &fakeRoom{connect: func(context.Context, *fakeRoom) error {
		close(entered)
		<-release
		return nil
	}}
	h := newHarness(t, room)

	errc := make(chan error, 1)
	go func() { errc <- h.adapter.Connect(context.Background(), soloIdentity) }()
	<-entered
	h.adapter.Disconnect()
	close(release)

	assert.ErrorIs(t, <-errc, ErrAdapterClosed)
	assert.Empty(t, h.listener.all())
	assert.GreaterOrEqual(t, room.disconnects.Load(), int32(1))
}

func TestConcurrentConnectsShareAttempt(t *testing.T) {
	release := make(chan struct{})
	room := &fakeRoom{connect: func(context.Context, *fakeRoom) error {
		<-release
		return nil
	}}
	h := newHarness(t, room)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.adapter.Connect(context.Background(), soloIdentity)
		}(i)
	}
	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
	assert.Equal(t, []string{"connected"}, h.listener.all())
}

func TestConnectCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	room := &fakeRoom{connect: func(context.Context, *fakeRoom) error {
		<-release
		return nil
	}}
	h := newHarness(t, room)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.adapter.Connect(ctx, soloIdentity), context.Canceled)
}
