package http

import (
	"net/http"

	validation "github.com/jellydator/validation"
)

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (s setPasswordRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Password, validation.Required),
	)
}

// handleSetPassword is the terminal step of every recovery flow. It serves
// both POST /password and POST /sms/set; either way the caller holds an
// allow-set-password capability whose identity names the account.
//
// Success returns 204 with no new token: the workflow is over. The spent
// capability is not revoked and stays verifiable until expiry, but no
// namespace remains for it to open.
func (r *Router) handleSetPassword(w http.ResponseWriter, req *http.Request) {
	var body setPasswordRequest
	if !r.readRequest(w, req, &body) {
		return
	}

	username := currentToken(req.Context()).Identity
	session := r.directory.NewSession()
	ctx := req.Context()

	passed, err := session.CheckPasswordPolicy(ctx, username, body.Password)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}
	if !passed {
		r.writeError(w, ErrWeakPassword)
		return
	}

	if err := session.SetPassword(ctx, username, body.Password); err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}

	if r.onPasswordChange != nil {
		r.onPasswordChange()
	}

	w.WriteHeader(http.StatusNoContent)
}
