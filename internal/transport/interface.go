// Package transport joins a viewer to the media room of a live stream and
// reports room activity to a single listener.
package transport

import (
	"context"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

// Adapter is one viewer's connection to one room. An Adapter is not reused
// after Disconnect.
type Adapter interface {
	Connect(ctx context.Context, identity domain.StreamIdentity) error
	Disconnect()
	// Participants lists remote participant identities, minus synthetic
	// viewer identities.
	Participants() []string
}

// Listener receives adapter events. Methods are called one at a time and
// must not call back into the adapter.
type Listener interface {
	OnConnected()
	OnDisconnected(reason string)
	OnReconnecting()
	OnReconnected()
	OnTrackSubscribed(binding domain.TrackBinding)
	OnTrackUnsubscribed(binding domain.TrackBinding)
}

// Credential grants access to a room.
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// TokenRequest asks the backend for a receive-only room credential.
type TokenRequest struct {
	RoomName            string `json:"roomName"`
	ParticipantName     string `json:"participantName"`
	ParticipantIdentity string `json:"participantIdentity"`
	CanPublish          bool   `json:"canPublish"`
	CanSubscribe        bool   `json:"canSubscribe"`
	DeviceType          string `json:"deviceType"`
	DeviceID            string `json:"deviceId"`
	SessionID           string `json:"sessionId"`
	Role                string `json:"role"`
}

// TokenFetcher obtains room credentials.
type TokenFetcher interface {
	FetchToken(ctx context.Context, req TokenRequest) (*Credential, error)
}

// Room is the underlying media connection. Connect blocks until the
// handshake completes. Disconnect must be safe to call more than once.
type Room interface {
	Connect(ctx context.Context, url, token string) error
	Disconnect()
	Participants() []string
}

// RoomEvents are the callbacks a Room reports through. Unset callbacks are
// not allowed; the adapter always fills all of them.
type RoomEvents struct {
	OnDisconnected      func(reason string)
	OnReconnecting      func()
	OnReconnected       func()
	OnTrackSubscribed   func(binding domain.TrackBinding)
	OnTrackUnsubscribed func(binding domain.TrackBinding)
}

// RoomFactory creates a Room wired to events.
type RoomFactory func(events RoomEvents) Room
