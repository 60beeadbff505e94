package http

import (
	"errors"
	"net/http"

	validation "github.com/jellydator/validation"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/pkg/httpx"
)

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a authenticateRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Username, validation.Required),
		validation.Field(&a.Password, validation.Required),
	)
}

// handleAuthenticate trades a correct username/password pair for an
// allow-set-password capability. Unknown usernames, barred accounts and
// wrong passwords all collapse into the same invalid-creds answer.
func (r *Router) handleAuthenticate(w http.ResponseWriter, req *http.Request) {
	var body authenticateRequest
	if !r.readRequest(w, req, &body) {
		return
	}

	session := r.directory.NewSession()
	ctx := req.Context()

	canAuth, err := session.CanAuthenticate(ctx, body.Username)
	if errors.Is(err, idm.ErrNotFound) {
		// An unknown username answers exactly like a wrong password.
		r.writeError(w, ErrInvalidCreds)
		return
	}
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}
	if !canAuth {
		r.writeError(w, ErrInvalidCreds)
		return
	}

	verified, err := session.VerifyPassword(ctx, body.Username, body.Password)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}
	if !verified {
		r.writeError(w, ErrInvalidCreds)
		return
	}

	raw, _, err := r.tokens.Mint(ctx, domain.NSAllowSetPassword, body.Username)
	if err != nil {
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: raw})
}
