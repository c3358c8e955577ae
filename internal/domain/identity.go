package domain

import (
	"fmt"
	"strconv"
)

// StreamMode distinguishes single-host broadcasts from multi-host rooms.
type StreamMode string

const (
	StreamModeSolo  StreamMode = "solo"
	StreamModeGroup StreamMode = "group"
)

// PartialIdentity is what a screen knows when it opens a viewer session.
// Exactly one field needs to be set.
type PartialIdentity struct {
	Username     string `json:"username,omitempty"`
	LiveStreamID *int64 `json:"live_stream_id,omitempty"`
	ProfileID    string `json:"profile_id,omitempty"`
}

// Empty reports whether no lookup key is set.
func (p PartialIdentity) Empty() bool {
	return p.Username == "" && p.LiveStreamID == nil && p.ProfileID == ""
}

func (p PartialIdentity) String() string {
	switch {
	case p.LiveStreamID != nil:
		return "stream:" + strconv.FormatInt(*p.LiveStreamID, 10)
	case p.Username != "":
		return "username:" + p.Username
	case p.ProfileID != "":
		return "profile:" + p.ProfileID
	default:
		return "empty"
	}
}

// StreamIdentity is the fully resolved target of a viewer session.
// It never changes for the lifetime of a session.
type StreamIdentity struct {
	ProfileID    string     `json:"profile_id"`
	Username     string     `json:"username"`
	LiveStreamID *int64     `json:"live_stream_id"`
	Mode         StreamMode `json:"mode"`
}

// Live reports whether the identity points at a running broadcast.
func (s StreamIdentity) Live() bool {
	return s.LiveStreamID != nil
}

// StreamID returns the live stream ID, or 0 when the profile is offline.
func (s StreamIdentity) StreamID() int64 {
	if s.LiveStreamID == nil {
		return 0
	}
	return *s.LiveStreamID
}

// ViewerIdentity describes the local viewer joining rooms.
type ViewerIdentity struct {
	ViewerID    string
	DisplayName string
	Platform    string
	DeviceID    string
}

// ParticipantIdentity builds the room identity for one connection:
// u_<viewerId>:<platform>:<deviceId>:<sessionId>.
func (v ViewerIdentity) ParticipantIdentity(sessionID string) string {
	return fmt.Sprintf("u_%s:%s:%s:%s", v.ViewerID, v.Platform, v.DeviceID, sessionID)
}

// Int64Ptr is a small helper for optional stream IDs.
func Int64Ptr(v int64) *int64 {
	return &v
}
