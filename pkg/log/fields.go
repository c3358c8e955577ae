package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Viewer
	FieldViewerID   = "viewer_id"
	FieldUsername   = "username"
	FieldProfileID  = "profile_id"
	FieldDeviceID   = "device_id"
	FieldClientID   = "client_id"
	FieldForeground = "foreground"

	// Session
	FieldSessionID    = "session_id"
	FieldGeneration   = "generation"
	FieldState        = "state"
	FieldLiveStreamID = "live_stream_id"
	FieldRoomName     = "room_name"
	FieldReason       = "reason"

	// Overlay
	FieldDedupKey = "dedup_key"
	FieldChannel  = "channel"

	// Service
	FieldService = "service"
	FieldDriver  = "driver"
)
