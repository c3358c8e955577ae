package webrtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) roomEvents() transport.RoomEvents {
	return transport.RoomEvents{
		OnDisconnected:      func(reason string) { l.add("disconnected:" + reason) },
		OnReconnecting:      func() { l.add("reconnecting") },
		OnReconnected:       func() { l.add("reconnected") },
		OnTrackSubscribed:   func(b domain.TrackBinding) { l.add("subscribed:" + b.OwnerIdentity) },
		OnTrackUnsubscribed: func(b domain.TrackBinding) { l.add("unsubscribed:" + b.OwnerIdentity) },
	}
}

func TestRoomStateMapping(t *testing.T) {
	log := &eventLog{}
	r := newRoom(NewPeerManager(nil), http.DefaultClient, log.roomEvents())

	r.handleState(webrtc.PeerConnectionStateConnecting)
	r.handleState(webrtc.PeerConnectionStateConnected)
	select {
	case <-r.connected:
	default:
		t.Fatal("first connected state must complete the handshake")
	}

	r.handleState(webrtc.PeerConnectionStateDisconnected)
	r.handleState(webrtc.PeerConnectionStateDisconnected)
	r.handleState(webrtc.PeerConnectionStateConnected)
	r.handleState(webrtc.PeerConnectionStateFailed)

	assert.Equal(t, []string{"reconnecting", "reconnected", "disconnected:failed"}, log.all())
}

func TestRoomFailureBeforeConnect(t *testing.T) {
	log := &eventLog{}
	r := newRoom(NewPeerManager(nil), http.DefaultClient, log.roomEvents())

	r.handleState(webrtc.PeerConnectionStateFailed)
	r.handleState(webrtc.PeerConnectionStateClosed)
	select {
	case <-r.failed:
	default:
		t.Fatal("failure before connecting must fail the handshake")
	}
	assert.Empty(t, log.all())
}

func TestRoomNoEventsAfterDisconnect(t *testing.T) {
	log := &eventLog{}
	r := newRoom(NewPeerManager(nil), http.DefaultClient, log.roomEvents())
	r.handleState(webrtc.PeerConnectionStateConnected)

	r.Disconnect()
	r.Disconnect()
	r.handleState(webrtc.PeerConnectionStateDisconnected)
	r.handleState(webrtc.PeerConnectionStateClosed)
	assert.Empty(t, log.all())
}

func TestRoomParticipants(t *testing.T) {
	log := &eventLog{}
	r := newRoom(NewPeerManager(nil), http.DefaultClient, log.roomEvents())

	video := domain.TrackBinding{Kind: domain.TrackVideo, OwnerIdentity: "u_host", TrackID: "v"}
	audio := domain.TrackBinding{Kind: domain.TrackAudio, OwnerIdentity: "u_host", TrackID: "a"}
	r.trackAdded(video)
	r.trackAdded(audio)
	r.trackAdded(domain.TrackBinding{Kind: domain.TrackVideo, OwnerIdentity: "u_cohost"})
	assert.Equal(t, []string{"u_cohost", "u_host"}, r.Participants())

	r.trackRemoved(video)
	assert.Equal(t, []string{"u_cohost", "u_host"}, r.Participants())
	r.trackRemoved(audio)
	assert.Equal(t, []string{"u_cohost"}, r.Participants())
}

func TestCreatePeerConnection(t *testing.T) {
	pc, err := NewPeerManager(nil).CreatePeerConnection(nil, nil)
	require.NoError(t, err)
	defer pc.Close()

	transceivers := pc.GetTransceivers()
	require.Len(t, transceivers, 2)
	for _, tr := range transceivers {
		assert.Equal(t, webrtc.RTPTransceiverDirectionRecvonly, tr.Direction())
	}
}

func TestConnectRejectedByEndpoint(t *testing.T) {
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	r := newRoom(NewPeerManager(nil), srv.Client(), (&eventLog{}).roomEvents())
	defer r.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.Connect(ctx, srv.URL+"/whep", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/sdp", gotType)
}

func TestConnectInvalidAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/whep/resource/1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("not sdp"))
	}))
	defer srv.Close()

	r := newRoom(NewPeerManager(nil), srv.Client(), (&eventLog{}).roomEvents())
	defer r.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.Error(t, r.Connect(ctx, srv.URL+"/whep", "tok"))
	assert.Equal(t, srv.URL+"/whep/resource/1", r.resource)
}

func TestConnectAfterDisconnect(t *testing.T) {
	r := newRoom(NewPeerManager(nil), http.DefaultClient, (&eventLog{}).roomEvents())
	r.Disconnect()
	assert.ErrorIs(t, r.Connect(context.Background(), "https://example.invalid/whep", "tok"), ErrRoomClosed)
}

func TestHTTPEndpoint(t *testing.T) {
	assert.Equal(t, "https://media.example.com/whep/solo_p1", httpEndpoint("wss://media.example.com/whep/solo_p1"))
	assert.Equal(t, "http://127.0.0.1:7880/whep", httpEndpoint("ws://127.0.0.1:7880/whep"))
	assert.Equal(t, "https://media.example.com/whep", httpEndpoint("https://media.example.com/whep"))
}
