package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
)

// LookupRepository answers the point lookups a viewer session needs.
type LookupRepository interface {
	ProfileByUsername(ctx context.Context, username string) (*domain.Profile, error)
	ProfileByID(ctx context.Context, id string) (*domain.Profile, error)
	StreamByID(ctx context.Context, id int64) (*domain.LiveStream, error)
	// ActiveStreamByProfile returns the newest live stream of a profile, or
	// ErrNotFound when the profile is not broadcasting.
	ActiveStreamByProfile(ctx context.Context, profileID string) (*domain.LiveStream, error)
}

// GiftCatalog resolves gift display metadata.
type GiftCatalog interface {
	GiftTypeByID(ctx context.Context, id int64) (*domain.GiftType, error)
	GiftTypeByName(ctx context.Context, name string) (*domain.GiftType, error)
}
