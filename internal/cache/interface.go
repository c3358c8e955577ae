package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

// IdentityCacheResult is a cached stream resolution.
type IdentityCacheResult struct {
	Identity domain.StreamIdentity `json:"identity"`
}

type IdentityCache interface {
	Get(ctx context.Context, key string) (*IdentityCacheResult, error)
	Set(ctx context.Context, key string, result *IdentityCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKey(partial domain.PartialIdentity) string
	Close() error
}
