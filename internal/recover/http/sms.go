package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	validation "github.com/jellydator/validation"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/internal/recover/service"
	"github.com/varden/recover/internal/recover/sms"
	"github.com/varden/recover/pkg/httpx"
	"github.com/varden/recover/pkg/slogx"
)

type smsIdentifyRequest struct {
	IdentifierType string `json:"identifier_type"`
	Identifier     string `json:"identifier"`
	Username       string `json:"username"`
	Mobile         string `json:"mobile"`
}

func (s smsIdentifyRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.IdentifierType, validation.Required),
		validation.Field(&s.Identifier, validation.Required),
		validation.Field(&s.Username, validation.Required),
		validation.Field(&s.Mobile, validation.Required),
	)
}

type smsVerifyRequest struct {
	Nonce string `json:"nonce"`
}

func (s smsVerifyRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Nonce, validation.Required),
	)
}

// handleSMSIdentify checks the submitted person facts, dispatches a one-time
// code to the claimed mobile and mints an allow-verify-nonce capability
// bound to the username:mobile pair.
//
// Every identification failure answers with the same generic not-found, so
// a caller probing identifiers learns nothing about which part missed.
func (r *Router) handleSMSIdentify(w http.ResponseWriter, req *http.Request) {
	var body smsIdentifyRequest
	if !r.readRequest(w, req, &body) {
		return
	}

	session := r.directory.NewSession()
	ctx := req.Context()

	personID, err := session.ResolvePerson(ctx, body.IdentifierType, body.Identifier)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}

	usernames, err := session.GetUsernames(ctx, personID)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}
	if !slices.Contains(usernames, body.Username) {
		r.writeError(w, ErrNotFound)
		return
	}

	if err := session.CanUseSMSService(ctx, personID, body.Username); err != nil {
		var denied *idm.DeniedError
		if errors.As(err, &denied) {
			r.writeError(w, ErrForbidden.WithDetails(string(denied.Reason)))
			return
		}
		r.writeDirectoryError(w, req, err)
		return
	}

	numbers, err := session.GetMobileNumbers(ctx, personID, body.Username)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}
	if !slices.Contains(numbers, body.Mobile) {
		r.writeError(w, ErrNotFound)
		return
	}

	identifier := domain.SMSIdentity(body.Username, body.Mobile)

	code, err := r.nonces.Issue(ctx, identifier)
	if err != nil {
		slogx.FromContext(ctx).Error("nonce issue failed", slog.String("error", err.Error()))
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	err = r.dispatcher.Send(ctx, body.Mobile, fmt.Sprintf(r.nonceMessage, code))
	switch {
	case errors.Is(err, sms.ErrFiltered):
		// The number passed eligibility but the dispatcher refuses it;
		// to the caller this is the same as a contact lookup miss.
		r.writeError(w, ErrNotFound)
		return
	case err != nil:
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	raw, _, err := r.tokens.Mint(ctx, domain.NSAllowVerifyNonce, identifier)
	if err != nil {
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: raw})
}

// handleSMSVerify trades a correct one-time code for an allow-set-password
// capability. The code is cleared on success; a second submission of the
// same code fails.
func (r *Router) handleSMSVerify(w http.ResponseWriter, req *http.Request) {
	var body smsVerifyRequest
	if !r.readRequest(w, req, &body) {
		return
	}

	ctx := req.Context()
	identifier := currentToken(ctx).Identity

	if err := r.nonces.Check(ctx, identifier, body.Nonce); err != nil {
		if errors.Is(err, service.ErrInvalidNonce) {
			r.writeError(w, ErrInvalidNonce)
			return
		}
		slogx.FromContext(ctx).Error("nonce check failed", slog.String("error", err.Error()))
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	username, _, err := domain.SplitSMSIdentity(identifier)
	if err != nil {
		r.writeError(w, ErrInvalidToken)
		return
	}

	raw, _, err := r.tokens.Mint(ctx, domain.NSAllowSetPassword, username)
	if err != nil {
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: raw})
}
