package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRoomMismatch = errors.New("token is scoped to a different room")
	ErrNoJoinGrant  = errors.New("token does not grant room join")
)

// VideoGrant is the room permission block carried by media-server join
// tokens under the "video" claim.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// Claims represents the claims of a join token.
type Claims struct {
	jwt.RegisteredClaims
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
}

// Inspector reads join tokens issued for the viewer. The signing key belongs
// to the media server, so signatures are not verified here; the inspector
// only rejects tokens that are malformed, expired or scoped elsewhere.
type Inspector struct {
	leeway time.Duration
	now    func() time.Time
}

// NewInspector creates an Inspector tolerating leeway of clock skew.
func NewInspector(leeway time.Duration) *Inspector {
	return &Inspector{leeway: leeway, now: time.Now}
}

// Inspect parses tokenString and checks it against the room the viewer asked
// to join. An empty room skips the scope check.
func (i *Inspector) Inspect(tokenString, room string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}

	if exp := claims.ExpiresAt; exp != nil && i.now().After(exp.Time.Add(i.leeway)) {
		return nil, ErrExpiredToken
	}

	if claims.Video != nil {
		if !claims.Video.RoomJoin {
			return nil, ErrNoJoinGrant
		}
		if room != "" && claims.Video.Room != "" && claims.Video.Room != room {
			return nil, ErrRoomMismatch
		}
	}

	return claims, nil
}
