package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/pkg/httpx"
	"github.com/varden/recover/pkg/slogx"
)

type listUsernamesRequest struct {
	IdentifierType string `json:"identifier_type"`
	Identifier     string `json:"identifier"`
}

func (l listUsernamesRequest) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.IdentifierType, validation.Required),
		validation.Field(&l.Identifier, validation.Required),
	)
}

type usernamesResponse struct {
	Usernames []string `json:"usernames"`

	// Token is an identity-found capability, so the caller can renew while
	// reading through the list.
	Token string `json:"token"`
}

// handleListUsernames answers which accounts belong to an identified
// person.
//
// A person with a publication reservation is never listed in the response.
// Instead the usernames go out by SMS to their preferred number and the
// caller gets the same not-found a nonexistent person would get: the
// legitimate owner is served, an unauthenticated prober learns nothing.
func (r *Router) handleListUsernames(w http.ResponseWriter, req *http.Request) {
	var body listUsernamesRequest
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

	show, err := session.CanShowUsernames(ctx, personID)
	if err != nil {
		r.writeDirectoryError(w, req, err)
		return
	}

	if show {
		raw, _, err := r.tokens.Mint(ctx, domain.NSIdentityFound, string(personID))
		if err != nil {
			r.writeError(w, ErrServiceUnavailable)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, usernamesResponse{Usernames: usernames, Token: raw})
		return
	}

	r.divertUsernamesToSMS(req, session, personID, usernames)
	r.writeError(w, ErrNotFound)
}

// divertUsernamesToSMS is best effort. Whatever happens here, the caller
// already has its not-found; failures are logged, never surfaced.
func (r *Router) divertUsernamesToSMS(req *http.Request, session idm.Session, personID domain.PersonID, usernames []string) {
	ctx := req.Context()
	l := slogx.FromContext(ctx)

	if len(usernames) == 0 {
		return
	}

	number, err := session.GetPreferredMobileNumber(ctx, personID)
	if err != nil {
		if !errors.Is(err, idm.ErrNotFound) {
			l.Error("preferred number lookup failed", slog.String("error", err.Error()))
		}
		return
	}

	message := fmt.Sprintf(r.usernamesMessage, strings.Join(usernames, ", "))
	if err := r.dispatcher.Send(ctx, number, message); err != nil {
		l.Error("username listing dispatch failed", slog.String("error", err.Error()))
	}
}
