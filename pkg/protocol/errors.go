package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned for frames that cannot be decoded or lack
// required fields.
var ErrMalformedMessage = errors.New("malformed message")

// ErrorCode is an error reported by the session server over the socket.
type ErrorCode int

const (
	ErrorUnknown                  ErrorCode = 0
	ErrorNoSuchFile               ErrorCode = 1001
	ErrorFileVersionMismatch      ErrorCode = 1002
	ErrorDatabaseUpdateFailed     ErrorCode = 1003
	ErrorComputeEngineUnavailable ErrorCode = 1005
	ErrorInvalidRequest           ErrorCode = 1006
	ErrorComputeError             ErrorCode = 1007
)

var errorCodeNames = map[ErrorCode]string{
	ErrorUnknown:                  "unknown",
	ErrorNoSuchFile:               "no such file",
	ErrorFileVersionMismatch:      "file version mismatch",
	ErrorDatabaseUpdateFailed:     "database update failed",
	ErrorComputeEngineUnavailable: "compute engine unavailable",
	ErrorInvalidRequest:           "invalid request",
	ErrorComputeError:             "compute error",
}

// ErrorCodeFrom maps a wire code to an ErrorCode. Unrecognized codes are ErrorUnknown.
func ErrorCodeFrom(code int) ErrorCode {
	if _, ok := errorCodeNames[ErrorCode(code)]; ok {
		return ErrorCode(code)
	}
	return ErrorUnknown
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// RemoteError is the error object carried by saveResponse and fileOpResponse.
type RemoteError struct {
	Code    ErrorCode `json:"errorCode" msgpack:"errorCode"`
	Message string    `json:"errorMessage" msgpack:"errorMessage"`
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote error: " + e.Code.String()
	}
	return fmt.Sprintf("remote error %d: %s", int(e.Code), e.Message)
}

// Is matches another RemoteError with the same code.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	return ok && t.Code == e.Code
}

// AsRemote checks if an error is a RemoteError and returns it.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
