package domain

import "time"

// Snapshot is everything the UI renders for the current viewer session.
type Snapshot struct {
	SessionID         string          `json:"session_id"`
	State             SessionState    `json:"state"`
	Identity          *StreamIdentity `json:"identity,omitempty"`
	Tracks            []TrackBinding  `json:"tracks"`
	Overlay           []OverlayEvent  `json:"overlay"`
	ViewerCount       int             `json:"viewer_count"`
	ViewerCountSource string          `json:"viewer_count_source,omitempty"`
	EndReason         string          `json:"end_reason,omitempty"`
	Error             *SessionError   `json:"error,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Track returns the binding of the given kind, if any.
func (s Snapshot) Track(kind TrackKind) (TrackBinding, bool) {
	for _, t := range s.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return TrackBinding{}, false
}
