package domain

import "time"

// ProfileModel is the GORM model for the profiles table.
type ProfileModel struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Username    string `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(100)"`
}

// TableName specifies the table name for ProfileModel.
func (ProfileModel) TableName() string {
	return "profiles"
}

func (m *ProfileModel) ToDomain() *Profile {
	return &Profile{ID: m.ID, Username: m.Username, DisplayName: m.DisplayName}
}

// LiveStreamModel is the GORM model for the live_streams table.
type LiveStreamModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	ProfileID     string `gorm:"type:varchar(36);index;not null"`
	LiveAvailable bool   `gorm:"index;not null;default:false"`
	StreamingMode string `gorm:"type:varchar(20);not null;default:'solo'"`
	StartedAt     *time.Time
}

// TableName specifies the table name for LiveStreamModel.
func (LiveStreamModel) TableName() string {
	return "live_streams"
}

func (m *LiveStreamModel) ToDomain() *LiveStream {
	mode := StreamMode(m.StreamingMode)
	if mode != StreamModeGroup {
		mode = StreamModeSolo
	}
	return &LiveStream{
		ID:            m.ID,
		ProfileID:     m.ProfileID,
		LiveAvailable: m.LiveAvailable,
		Mode:          mode,
		StartedAt:     m.StartedAt,
	}
}

// GiftTypeModel is the GORM model for the gift_types table.
type GiftTypeModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"type:varchar(100);index;not null"`
	IconURL  string `gorm:"type:text"`
	CoinCost int64  `gorm:"not null;default:0"`
}

// TableName specifies the table name for GiftTypeModel.
func (GiftTypeModel) TableName() string {
	return "gift_types"
}

func (m *GiftTypeModel) ToDomain() *GiftType {
	return &GiftType{ID: m.ID, Name: m.Name, IconURL: m.IconURL, CoinCost: m.CoinCost}
}

// ActiveViewerModel is the GORM model for the active_viewers table, one row
// per (viewer, stream).
type ActiveViewerModel struct {
	ViewerID     string    `gorm:"type:varchar(36);primaryKey"`
	LiveStreamID int64     `gorm:"primaryKey;autoIncrement:false;index:idx_active_viewers_stream"`
	IsActive     bool      `gorm:"not null;default:false"`
	IsUnmuted    bool      `gorm:"not null;default:false"`
	IsVisible    bool      `gorm:"not null;default:false"`
	IsSubscribed bool      `gorm:"not null;default:false"`
	LastActiveAt time.Time `gorm:"index:idx_active_viewers_stream;not null"`
}

// TableName specifies the table name for ActiveViewerModel.
func (ActiveViewerModel) TableName() string {
	return "active_viewers"
}

// PresenceToModel converts a PresenceRecord to its row.
func PresenceToModel(r PresenceRecord) *ActiveViewerModel {
	return &ActiveViewerModel{
		ViewerID:     r.ViewerID,
		LiveStreamID: r.LiveStreamID,
		IsActive:     r.Active,
		IsUnmuted:    r.IsUnmuted,
		IsVisible:    r.IsVisible,
		IsSubscribed: r.IsSubscribed,
		LastActiveAt: r.LastSentAt,
	}
}
