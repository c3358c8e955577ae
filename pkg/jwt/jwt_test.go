package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("media-server-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := NewInspector(5 * time.Second)
	i.now = func() time.Time { return now }

	valid := sign(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		Video:            &VideoGrant{Room: "solo_p1", RoomJoin: true},
	})

	t.Run("valid", func(t *testing.T) {
		claims, err := i.Inspect(valid, "solo_p1")
		require.NoError(t, err)
		assert.Equal(t, "solo_p1", claims.Video.Room)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := i.Inspect("not-a-jwt", "solo_p1")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := sign(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))},
		})
		_, err := i.Inspect(expired, "")
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("within leeway", func(t *testing.T) {
		almost := sign(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-2 * time.Second))},
		})
		_, err := i.Inspect(almost, "")
		assert.NoError(t, err)
	})

	t.Run("other room", func(t *testing.T) {
		_, err := i.Inspect(valid, "solo_p2")
		assert.ErrorIs(t, err, ErrRoomMismatch)
	})

	t.Run("no join grant", func(t *testing.T) {
		token := sign(t, Claims{Video: &VideoGrant{Room: "solo_p1"}})
		_, err := i.Inspect(token, "solo_p1")
		assert.ErrorIs(t, err, ErrNoJoinGrant)
	})
}
