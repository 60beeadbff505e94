// Package http exposes the recovery workflow over HTTP: token-gated
// handlers, the error envelope and the middleware gluing them together.
package http

import (
	"net/http"

	"github.com/varden/recover/pkg/httpx"
)

// ErrorHeader carries the machine-readable error type alongside the body,
// so proxies and clients can branch without parsing JSON.
const ErrorHeader = "X-Api-Error"

// APIError is the wire error envelope. Details are optional, human-oriented
// and never carry downstream error text.
type APIError struct {
	Type    string `json:"error"`
	Details any    `json:"details,omitempty"`

	status int
}

func (e *APIError) Error() string { return e.Type }

// WithDetails returns a copy carrying the given details.
func (e *APIError) WithDetails(details any) *APIError {
	clone := *e
	clone.Details = details
	return &clone
}

// The full error taxonomy. Lookup misses deliberately answer with a generic
// 400 "not-found" rather than 404, to avoid confirming or denying that a
// person exists.
var (
	ErrSchema             = &APIError{Type: "schema-error", status: http.StatusBadRequest}
	ErrInvalidCreds       = &APIError{Type: "invalid-creds", status: http.StatusUnauthorized}
	ErrInvalidToken       = &APIError{Type: "invalid-token", status: http.StatusUnauthorized}
	ErrForbidden          = &APIError{Type: "forbidden", status: http.StatusForbidden}
	ErrNotFound           = &APIError{Type: "not-found", status: http.StatusBadRequest}
	ErrInvalidNonce       = &APIError{Type: "invalid-nonce", status: http.StatusUnauthorized}
	ErrWeakPassword       = &APIError{Type: "weak-password", status: http.StatusBadRequest}
	ErrTooManyRequests    = &APIError{Type: "too-many-requests", status: http.StatusTooManyRequests}
	ErrServiceUnavailable = &APIError{Type: "service-unavailable", status: http.StatusServiceUnavailable}
)

// writeError emits the envelope. The router's error observer, when set,
// counts the response by type.
func (r *Router) writeError(w http.ResponseWriter, apiErr *APIError) {
	if r.onError != nil {
		r.onError(apiErr.Type)
	}

	w.Header().Set(ErrorHeader, apiErr.Type)
	if apiErr.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", r.scheme)
	}
	httpx.WriteJSON(w, apiErr.status, apiErr)
}
