// Package apperr holds the error taxonomy shared by the scan engine, the
// upstream clients and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCanceled marks a scan that stopped because its context was canceled.
// It is a terminal state, not a failure.
var ErrCanceled = errors.New("scan canceled")

// ConfigurationError reports a missing or invalid setting. Fatal, never retried.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ValidationError reports caller input rejected before any upstream call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation is a shorthand constructor.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError is a non-2xx response or an undecodable body from an
// upstream API. Snippet carries a truncated diagnostic excerpt of the body.
type UpstreamError struct {
	Service    string
	StatusCode int
	NonJSON    bool
	Snippet    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.NonJSON:
		return fmt.Sprintf("%s returned a non-JSON body: %s", e.Service, e.Snippet)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error %d: %s", e.Service, e.StatusCode, e.Snippet)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	default:
		return e.Service + " request failed"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	var (
		verr *ValidationError
		cerr *ConfigurationError
		uerr *UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusInternalServerError
	case errors.As(err, &uerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
