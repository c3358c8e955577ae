package domain

import "time"

// PresenceRecord is one viewer's liveness marker for one stream.
type PresenceRecord struct {
	ViewerID     string    `json:"viewer_id"`
	LiveStreamID int64     `json:"live_stream_id"`
	Active       bool      `json:"active"`
	IsUnmuted    bool      `json:"is_unmuted"`
	IsVisible    bool      `json:"is_visible"`
	IsSubscribed bool      `json:"is_subscribed"`
	LastSentAt   time.Time `json:"last_sent_at"`
}

// NewPresenceRecord builds a record whose detail flags follow active.
func NewPresenceRecord(viewerID string, liveStreamID int64, active bool, at time.Time) PresenceRecord {
	return PresenceRecord{
		ViewerID:     viewerID,
		LiveStreamID: liveStreamID,
		Active:       active,
		IsUnmuted:    active,
		IsVisible:    active,
		IsSubscribed: active,
		LastSentAt:   at,
	}
}

// Viewer count sources.
const (
	ViewerCountFromPoll = "poll"
	ViewerCountFromFeed = "feed"
)
