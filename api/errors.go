package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors classify every failure the client can return. Callers
// branch with errors.Is; the full detail travels in *Error.
var (
	// ErrNetwork covers connection failures before a response arrived.
	ErrNetwork = errors.New("api: network error")

	// ErrTimeout covers deadline expiry, either the request timeout or a
	// caller-supplied context.
	ErrTimeout = errors.New("api: request timed out")

	// ErrUnauthorized covers 401 and 403 responses.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrValidation covers the remaining 4xx responses.
	ErrValidation = errors.New("api: request rejected")

	// ErrServer covers 5xx responses.
	ErrServer = errors.New("api: server error")
)

// Error carries the failure detail for a request. It wraps one of the
// sentinel errors so errors.Is classification works through it.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0 && e.Message != "":
		return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("api: %d: %v", e.StatusCode, e.Err)
	case e.Message != "":
		return fmt.Sprintf("api: %s: %v", e.Message, e.Err)
	default:
		return fmt.Sprintf("api: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status to its sentinel.
func classifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status >= 500:
		return ErrServer
	case status >= 400:
		return ErrValidation
	default:
		return nil
	}
}

// classifyTransport maps an error from the HTTP round trip to ErrTimeout
// or ErrNetwork.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrNetwork
}

// errorBody is the backend's error shape. Detail is usually a string but
// validation failures carry a structured list.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// errorMessage extracts a human-readable message from a response body,
// falling back to empty when the body is not the expected shape.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(parsed.Detail, &detail); err == nil {
		return detail
	}
	return string(parsed.Detail)
}
