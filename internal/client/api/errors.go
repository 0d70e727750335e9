package api

import (
	"errors"
	"fmt"
)

// ErrNetwork matches every failed delivery attempt (see DeliveryError)
var ErrNetwork = errors.New("network error")

// DeliveryError describes a failed request to the remote boundary.
// StatusCode is zero when no response was received.
type DeliveryError struct {
	Err        error
	Method     string
	Endpoint   string
	Message    string
	StatusCode int
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s %s: server error (%d): %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: request failed with status %d", e.Method, e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is reports ErrNetwork as a match.
func (e *DeliveryError) Is(target error) bool { return target == ErrNetwork }
