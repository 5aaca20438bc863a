package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoResponseBody is returned when the relay answers without a stream
var ErrNoResponseBody = errors.New("no response body")

// RequestError is a non-success HTTP status from the relay
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Request failed with status %d", e.Status)
}

// NetworkError wraps a transport-level failure (DNS, reset, timeout)
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a transport timeout
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsRateLimit checks for a 429 from the relay
func IsRateLimit(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == 429
}
