package store

import (
	"context"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

// PresenceStore is the backend's presence primitive, keyed by
// (viewerID, liveStreamID).
type PresenceStore interface {
	Upsert(ctx context.Context, record domain.PresenceRecord) error
	Delete(ctx context.Context, viewerID string, liveStreamID int64) error
	// CountActiveViewers counts active records refreshed within the
	// staleness window.
	CountActiveViewers(ctx context.Context, liveStreamID int64) (int, error)
}
