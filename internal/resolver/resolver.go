package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/viewer/internal/cache"
	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/repository"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// lookupTimeout bounds a shared lookup, which outlives any single caller.
const lookupTimeout = 10 * time.Second

var (
	// ErrIdentityUnresolved means no profile matches the partial identity.
	ErrIdentityUnresolved = errors.New("stream identity could not be resolved")
	// ErrStreamOffline means the profile exists but is not broadcasting.
	ErrStreamOffline = errors.New("stream is not live")
)

// Resolver turns the partial identity a screen knows into a full
// StreamIdentity.
type Resolver interface {
	Resolve(ctx context.Context, partial domain.PartialIdentity) (domain.StreamIdentity, error)
	// Forget drops every cached resolution that points at identity.
	Forget(ctx context.Context, identity domain.StreamIdentity)
}

type resolverImpl struct {
	repo     repository.LookupRepository
	cache    cache.IdentityCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewResolver creates a Resolver. identityCache may be nil.
func NewResolver(repo repository.LookupRepository, identityCache cache.IdentityCache, cacheTTL time.Duration) Resolver {
	return &resolverImpl{
		repo:     repo,
		cache:    identityCache,
		cacheTTL: cacheTTL,
	}
}

func (r *resolverImpl) Resolve(ctx context.Context, partial domain.PartialIdentity) (domain.StreamIdentity, error) {
	if partial.Empty() {
		return domain.StreamIdentity{}, fmt.Errorf("%w: no username, stream id or profile id given", ErrIdentityUnresolved)
	}

	key := partial.String()
	if r.cache != nil {
		key = r.cache.BuildKey(partial)
	}

	// Callers for the same key share one lookup. It runs detached from the
	// first caller so that caller's cancellation cannot fail the others;
	// each caller still stops waiting when its own ctx ends.
	ch := r.sf.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.resolveWithCache(lctx, partial, key)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.StreamIdentity{}, ctx.Err()
	}
	if res.Err != nil {
		return domain.StreamIdentity{}, res.Err
	}

	identity, ok := res.Val.(domain.StreamIdentity)
	if !ok {
		return domain.StreamIdentity{}, fmt.Errorf("unexpected result type from singleflight")
	}
	if !identity.Live() {
		return identity, ErrStreamOffline
	}
	return identity, nil
}

func (r *resolverImpl) Forget(ctx context.Context, identity domain.StreamIdentity) {
	if r.cache == nil {
		return
	}

	keys := make([]string, 0, 3)
	for _, p := range []domain.PartialIdentity{
		{LiveStreamID: identity.LiveStreamID},
		{Username: identity.Username},
		{ProfileID: identity.ProfileID},
	} {
		if !p.Empty() {
			keys = append(keys, r.cache.BuildKey(p))
		}
	}

	if err := r.cache.Delete(ctx, keys...); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldProfileID, identity.ProfileID).Msg("identity cache delete error")
	}
}

func (r *resolverImpl) resolveWithCache(ctx context.Context, partial domain.PartialIdentity, cacheKey string) (domain.StreamIdentity, error) {
	l := log.Ctx(ctx)

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, cacheKey)
		if err == nil {
			return cached.Identity, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Msg("identity cache get error")
		}
	}

	identity, err := r.lookup(ctx, partial)
	if err != nil {
		return domain.StreamIdentity{}, err
	}

	// Offline results are not cached so that a broadcast starting right
	// after a failed join is picked up on retry.
	if r.cache != nil && identity.Live() {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.cache.Set(cacheCtx, cacheKey, &cache.IdentityCacheResult{Identity: identity}, r.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("identity cache set error")
			}
		}()
	}

	return identity, nil
}

func (r *resolverImpl) lookup(ctx context.Context, partial domain.PartialIdentity) (domain.StreamIdentity, error) {
	var (
		profile *domain.Profile
		stream  *domain.LiveStream
		err     error
	)

	switch {
	case partial.LiveStreamID != nil:
		stream, err = r.repo.StreamByID(ctx, *partial.LiveStreamID)
		if err != nil {
			return domain.StreamIdentity{}, wrapLookup(err, "live stream")
		}
		profile, err = r.repo.ProfileByID(ctx, stream.ProfileID)
		if err != nil {
			return domain.StreamIdentity{}, wrapLookup(err, "stream owner")
		}
		if !stream.LiveAvailable {
			stream = nil
		}

	case partial.Username != "":
		profile, err = r.repo.ProfileByUsername(ctx, partial.Username)
		if err != nil {
			return domain.StreamIdentity{}, wrapLookup(err, "profile")
		}
		stream, err = r.activeStream(ctx, profile.ID)
		if err != nil {
			return domain.StreamIdentity{}, err
		}

	default:
		profile, err = r.repo.ProfileByID(ctx, partial.ProfileID)
		if err != nil {
			return domain.StreamIdentity{}, wrapLookup(err, "profile")
		}
		stream, err = r.activeStream(ctx, profile.ID)
		if err != nil {
			return domain.StreamIdentity{}, err
		}
	}

	identity := domain.StreamIdentity{
		ProfileID: profile.ID,
		Username:  profile.Username,
		Mode:      domain.StreamModeSolo,
	}
	if stream != nil {
		identity.LiveStreamID = domain.Int64Ptr(stream.ID)
		identity.Mode = stream.Mode
	}
	return identity, nil
}

func (r *resolverImpl) activeStream(ctx context.Context, profileID string) (*domain.LiveStream, error) {
	stream, err := r.repo.ActiveStreamByProfile(ctx, profileID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active stream: %w", err)
	}
	return stream, nil
}

func wrapLookup(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s not found", ErrIdentityUnresolved, what)
	}
	return fmt.Errorf("failed to look up %s: %w", what, err)
}
