package session

import (
	"errors"
	"fmt"
)

var (
	ErrOpenAlreadyInProgress = errors.New("open already in progress")
	ErrAlreadyOpen           = errors.New("session already open")
	ErrSessionClosed         = errors.New("session closed")
	ErrNotConnected          = errors.New("session not connected")
	ErrConnectionLost        = errors.New("connection lost before response")
	ErrUnexpectedResponse    = errors.New("unexpected response type")
)

// TransportError is a failure of the underlying connection. It is terminal
// for the engine that saw it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
