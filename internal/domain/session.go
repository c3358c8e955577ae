package domain

// SessionState is the state of one viewer session.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateResolving    SessionState = "resolving"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateReconnecting SessionState = "reconnecting"
	StateEnded        SessionState = "ended"
	StateErrored      SessionState = "errored"
)

// Terminal reports whether the session can no longer change state.
func (s SessionState) Terminal() bool {
	return s == StateEnded || s == StateErrored
}

// Live reports whether the transport is up or briefly recovering.
func (s SessionState) Live() bool {
	return s == StateConnected || s == StateReconnecting
}

// Error codes surfaced to the UI.
const (
	ErrCodeIdentityUnresolved = "IDENTITY_UNRESOLVED"
	ErrCodeStreamOffline      = "STREAM_OFFLINE"
	ErrCodeCredential         = "CREDENTIAL_ERROR"
	ErrCodeConnect            = "CONNECT_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// SessionError is the user-facing description of an errored session.
type SessionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// End reasons.
const (
	ReasonClosed      = "closed"
	ReasonSuperseded  = "superseded"
	ReasonStreamEnded = "stream_ended"
)
