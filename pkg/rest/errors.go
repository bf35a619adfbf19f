package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNotModified is returned by conditional fetches when the server copy
	// matches the supplied version tag.
	ErrNotModified = errors.New("not modified")

	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// AsStatus checks if an error is a StatusError and returns it.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ConflictError is returned when a push names a version the server no longer has.
type ConflictError struct {
	FileID          int
	ExpectedVersion int
	CurrentVersion  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on file %d: expected version %d, server has %d",
		e.FileID, e.ExpectedVersion, e.CurrentVersion)
}

// AsConflict checks if an error is a ConflictError and returns it.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError builds the error for resp, reading a JSON error body if present.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	se := &StatusError{Code: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		se.Message = body.Error
		if se.Message == "" {
			se.Message = body.Message
		}
	}
	return se
}
