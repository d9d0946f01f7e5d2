package session

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError means the request never completed: the service was
// unreachable, the transport timed out, or the reply could not be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// APIError means the service answered and rejected the request.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
	IsKey   *bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// MessageOf extracts the user-facing message carried by err, if any.
// Transport failures carry none.
func MessageOf(err error) (text string, isKey *bool, ok bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		return msg, apiErr.IsKey, msg != ""
	}
	return "", nil, false
}
