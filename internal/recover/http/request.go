package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/jellydator/validation"

	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/pkg/slogx"
)

// validatable is implemented by every request body type.
type validatable interface {
	Validate() error
}

// readRequest decodes and validates a JSON request body. On failure it has
// already written a schema-error response and returns false.
func (r *Router) readRequest(w http.ResponseWriter, req *http.Request, dst validatable) bool {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		r.writeError(w, ErrSchema.WithDetails("malformed JSON body"))
		return false
	}

	if err := dst.Validate(); err != nil {
		var fields validation.Errors
		if errors.As(err, &fields) {
			r.writeError(w, ErrSchema.WithDetails(fields))
		} else {
			r.writeError(w, ErrSchema)
		}
		return false
	}
	return true
}

// writeDirectoryError translates an identity-directory failure. Lookup
// misses become the generic not-found; anything else is a downstream fault
// and must surface as service-unavailable, never as a security decision.
func (r *Router) writeDirectoryError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, idm.ErrNotFound) {
		r.writeError(w, ErrNotFound)
		return
	}

	slogx.FromContext(req.Context()).Error("identity directory failure",
		slog.String("error", err.Error()))
	r.writeError(w, ErrServiceUnavailable)
}

// tokenResponse is the body of every handler that mints or renews a token.
type tokenResponse struct {
	Token string `json:"token"`
}
