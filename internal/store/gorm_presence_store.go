package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// GormPresenceStore implements PresenceStore on the active_viewers table.
type GormPresenceStore struct {
	db        *gorm.DB
	staleness time.Duration
	now       func() time.Time
}

// NewGormPresenceStore creates a presence store. Records older than
// staleness are not counted.
func NewGormPresenceStore(db *gorm.DB, staleness time.Duration) *GormPresenceStore {
	return &GormPresenceStore{db: db, staleness: staleness, now: time.Now}
}

func (s *GormPresenceStore) Upsert(ctx context.Context, record domain.PresenceRecord) error {
	model := domain.PresenceToModel(record)
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "viewer_id"}, {Name: "live_stream_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "is_unmuted", "is_visible", "is_subscribed", "last_active_at",
		}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert presence: %w", result.Error)
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldViewerID, record.ViewerID).
		Int64(log.FieldLiveStreamID, record.LiveStreamID).
		Bool("active", record.Active).
		Msg("presence upserted")
	return nil
}

func (s *GormPresenceStore) Delete(ctx context.Context, viewerID string, liveStreamID int64) error {
	result := s.db.WithContext(ctx).
		Where("viewer_id = ? AND live_stream_id = ?", viewerID, liveStreamID).
		Delete(&domain.ActiveViewerModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete presence: %w", result.Error)
	}
	return nil
}

func (s *GormPresenceStore) CountActiveViewers(ctx context.Context, liveStreamID int64) (int, error) {
	cutoff := s.now().Add(-s.staleness)

	var count int64
	result := s.db.WithContext(ctx).Model(&domain.ActiveViewerModel{}).
		Where("live_stream_id = ? AND is_active = ? AND last_active_at > ?", liveStreamID, true, cutoff).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count active viewers: %w", result.Error)
	}
	return int(count), nil
}
