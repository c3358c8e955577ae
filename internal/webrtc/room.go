// Package webrtc implements a receive-only media room over WHEP.
package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

var (
	ErrHandshakeFailed = errors.New("peer connection failed before connecting")
	ErrRoomClosed      = errors.New("room closed")
)

const deleteTimeout = 5 * time.Second

// Room is a WHEP subscriber session implementing transport.Room.
type Room struct {
	pm         *PeerManager
	httpClient *http.Client
	events     transport.RoomEvents

	connected chan struct{}
	failed    chan struct{}

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	resource     string
	token        string
	wasConnected bool
	dropped      bool
	closed       bool
	failOnce     sync.Once
	connOnce     sync.Once
	participants map[string]int
}

// NewRoomFactory returns a transport.RoomFactory producing WHEP rooms.
func NewRoomFactory(pm *PeerManager, httpClient *http.Client) transport.RoomFactory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return func(events transport.RoomEvents) transport.Room {
		return newRoom(pm, httpClient, events)
	}
}

func newRoom(pm *PeerManager, httpClient *http.Client, events transport.RoomEvents) *Room {
	return &Room{
		pm:           pm,
		httpClient:   httpClient,
		events:       events,
		connected:    make(chan struct{}),
		failed:       make(chan struct{}),
		participants: make(map[string]int),
	}
}

// Connect performs the WHEP offer/answer exchange against endpoint and
// waits for the peer connection to come up.
func (r *Room) Connect(ctx context.Context, endpoint, token string) error {
	pc, err := r.pm.CreatePeerConnection(r.handleTrack, r.handleState)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = pc.Close()
		return ErrRoomClosed
	}
	r.pc = pc
	r.token = token
	r.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, location, err := r.postOffer(ctx, httpEndpoint(endpoint), token, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.resource = location
	r.mu.Unlock()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	select {
	case <-r.connected:
		return nil
	case <-r.failed:
		return ErrHandshakeFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// httpEndpoint maps websocket room URLs, as handed out with credentials,
// onto the HTTP scheme WHEP is spoken over.
func httpEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	return u.String()
}

func (r *Room) postOffer(ctx context.Context, endpoint, token, sdp string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(sdp))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to post offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("failed to read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("whep endpoint returned status %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location != "" {
		if base, err := url.Parse(endpoint); err == nil {
			if ref, err := base.Parse(location); err == nil {
				location = ref.String()
			}
		}
	}
	return string(body), location, nil
}

// Disconnect deletes the WHEP resource and closes the peer connection.
func (r *Room) Disconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pc, resource, token := r.pc, r.resource, r.token
	r.mu.Unlock()

	if resource != "" {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		if req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
			if resp, err := r.httpClient.Do(req); err != nil {
				l := log.L()
				l.Debug().Err(err).Msg("WHEP resource delete failed")
			} else {
				resp.Body.Close()
			}
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("Failed to close peer connection")
		}
	}
}

// Participants returns the identities currently publishing to the viewer.
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.participants))
	for id := range r.participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Room) handleState(state webrtc.PeerConnectionState) {
	r.mu.Lock()
	closed := r.closed
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if !r.wasConnected {
			r.wasConnected = true
			r.mu.Unlock()
			r.connOnce.Do(func() { close(r.connected) })
			return
		}
		if !r.dropped || closed {
			r.mu.Unlock()
			return
		}
		r.dropped = false
		r.mu.Unlock()
		r.events.OnReconnected()

	case webrtc.PeerConnectionStateDisconnected:
		if !r.wasConnected || r.dropped || closed {
			r.mu.Unlock()
			return
		}
		r.dropped = true
		r.mu.Unlock()
		r.events.OnReconnecting()

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		wasConnected := r.wasConnected
		r.mu.Unlock()
		if !wasConnected {
			r.failOnce.Do(func() { close(r.failed) })
			return
		}
		if !closed {
			r.events.OnDisconnected(state.String())
		}

	default:
		r.mu.Unlock()
	}
}

func trackKind(k webrtc.RTPCodecType) domain.TrackKind {
	if k == webrtc.RTPCodecTypeAudio {
		return domain.TrackAudio
	}
	return domain.TrackVideo
}

func (r *Room) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	binding := domain.TrackBinding{
		Kind:          trackKind(track.Kind()),
		OwnerIdentity: track.StreamID(),
		TrackID:       track.ID(),
		Ready:         true,
	}
	r.trackAdded(binding)
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				r.trackRemoved(binding)
				return
			}
		}
	}()
}

func (r *Room) trackAdded(b domain.TrackBinding) {
	r.mu.Lock()
	r.participants[b.OwnerIdentity]++
	r.mu.Unlock()
	r.events.OnTrackSubscribed(b)
}

func (r *Room) trackRemoved(b domain.TrackBinding) {
	r.mu.Lock()
	if n := r.participants[b.OwnerIdentity]; n <= 1 {
		delete(r.participants, b.OwnerIdentity)
	} else {
		r.participants[b.OwnerIdentity] = n - 1
	}
	r.mu.Unlock()
	r.events.OnTrackUnsubscribed(b)
}
