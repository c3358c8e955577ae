package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// GormLookupRepository implements LookupRepository and GiftCatalog using GORM.
type GormLookupRepository struct {
	db *gorm.DB
}

// NewGormLookupRepository creates a new GORM-based lookup repository.
func NewGormLookupRepository(db *gorm.DB) *GormLookupRepository {
	return &GormLookupRepository{db: db}
}

// ProfileByUsername retrieves a profile by its (case-insensitive) username.
func (r *GormLookupRepository) ProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	l := log.Ctx(ctx)

	var model domain.ProfileModel
	result := r.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(strings.TrimSpace(username))).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldUsername, username).Msg("failed to get profile by username")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ProfileByID retrieves a profile by ID.
func (r *GormLookupRepository) ProfileByID(ctx context.Context, id string) (*domain.Profile, error) {
	l := log.Ctx(ctx)

	var model domain.ProfileModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldProfileID, id).Msg("failed to get profile by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// StreamByID retrieves a live stream by ID, live or not.
func (r *GormLookupRepository) StreamByID(ctx context.Context, id int64) (*domain.LiveStream, error) {
	l := log.Ctx(ctx)

	var model domain.LiveStreamModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Int64(log.FieldLiveStreamID, id).Msg("failed to get live stream by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ActiveStreamByProfile retrieves the newest live stream of a profile.
func (r *GormLookupRepository) ActiveStreamByProfile(ctx context.Context, profileID string) (*domain.LiveStream, error) {
	l := log.Ctx(ctx)

	var model domain.LiveStreamModel
	result := r.db.WithContext(ctx).
		Where("profile_id = ? AND live_available = ?", profileID, true).
		Order("id DESC").
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldProfileID, profileID).Msg("failed to get active stream by profile")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GiftTypeByID retrieves a gift type by ID.
func (r *GormLookupRepository) GiftTypeByID(ctx context.Context, id int64) (*domain.GiftType, error) {
	var model domain.GiftTypeModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GiftTypeByName retrieves a gift type by its display name, ignoring case.
func (r *GormLookupRepository) GiftTypeByName(ctx context.Context, name string) (*domain.GiftType, error) {
	var model domain.GiftTypeModel
	result := r.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
