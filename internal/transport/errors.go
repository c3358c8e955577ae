package transport

import (
	"errors"
	"fmt"
)

var ErrAdapterClosed = errors.New("transport adapter closed")

// CredentialError means no usable room credential could be obtained.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("room credential: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConnectError means the room handshake failed.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("room connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
