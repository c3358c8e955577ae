package domain

// TrackKind is the media kind of a subscribed track.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// TrackBinding is a remote track attached to the viewer's renderer.
type TrackBinding struct {
	Kind          TrackKind `json:"kind"`
	OwnerIdentity string    `json:"owner_identity"`
	TrackID       string    `json:"track_id"`
	Ready         bool      `json:"ready"`
}

// Same reports whether b refers to the same remote track as other.
func (b TrackBinding) Same(other TrackBinding) bool {
	return b.Kind == other.Kind && b.OwnerIdentity == other.OwnerIdentity && b.TrackID == other.TrackID
}
