// Package drive provides an HTTP client for the Google Drive v3 API with
// automatic retry, error classification, credential lifecycle management,
// idempotent folder resolution, and the two-phase resumable upload protocol.
package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrThrottled    = errors.New("drive: rate limited")
	ErrServerError  = errors.New("drive: server error")
)

// ErrCredentialUnresolved is returned by EnsureAccessToken when the exchange
// flow finishes and either the access token or its kind is still empty.
// It is fatal: the caller aborts the run, there is no retry.
var ErrCredentialUnresolved = errors.New("drive: unresolved credential")

// APIError wraps a sentinel error with the HTTP status code and the API
// error message body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError reports a failed credential exchange or refresh. Always fatal.
type AuthError struct {
	Op  string // "introspect", "exchange", "refresh", "resolve"
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("drive: auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// QueryError reports a rejected or undecodable list response. Listing never
// degrades a transport or decode failure to an empty result set — the
// ambiguity between "no matches" and "broken query" is resolved by typing it.
type QueryError struct {
	Filter string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("drive: query %q: %v", e.Filter, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Upload phases for TransferError.Phase.
const (
	PhaseInit     = "init"
	PhaseTransfer = "transfer"
)

// TransferError reports a failed upload, distinguishing session initiation
// (no session URI obtained) from content transfer (non-success status while
// streaming the body).
type TransferError struct {
	Phase string // PhaseInit or PhaseTransfer
	Name  string // local file name
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("drive: upload %s of %s: %v", e.Phase, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
