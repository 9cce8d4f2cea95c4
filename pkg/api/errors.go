package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a remote user service failure.
type ErrorKind string

const (
	// KindValidation is a 4xx with field-level detail. Not retryable; the
	// field errors are meant for form re-display.
	KindValidation ErrorKind = "validation"
	// KindAuth is an authentication or authorization failure.
	KindAuth ErrorKind = "auth"
	// KindNotFound means the record does not exist on the server.
	KindNotFound ErrorKind = "not_found"
	// KindServer is a 5xx response.
	KindServer ErrorKind = "server"
	// KindNetwork is a transport-level failure: connection refused, timeout,
	// cancelled context.
	KindNetwork ErrorKind = "network"
)

// FieldError is one field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured failure returned by the remote user service.
// The coordinator only cares about Kind and Retryable; the presentation
// layer additionally reads Fields for validation failures.
type Error struct {
	Kind    ErrorKind    `json:"kind"`
	Status  int          `json:"status,omitempty"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("user service: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("user service: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether re-invoking the same call may succeed.
// Validation and auth failures are deterministic; network and server
// failures are worth retrying.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// IsValidation reports whether err is a field-level validation failure.
func IsValidation(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindValidation
}

// IsRetryable reports whether err is a transient remote failure.
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// kindForStatus maps an HTTP status to an error kind. Field detail decides
// between validation and a generic client error at the call site.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// networkError wraps a transport failure.
func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
}
