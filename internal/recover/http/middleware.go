package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/service"
	"github.com/varden/recover/pkg/httpx"
	"github.com/varden/recover/pkg/slogx"
)

// Namespace sets accepted by the gated routes. nsAny is the renew surface:
// any real capability may be refreshed, whatever its stage.
var (
	nsAllowSetPassword = []domain.Namespace{domain.NSAllowSetPassword}
	nsAllowVerifyNonce = []domain.Namespace{domain.NSAllowVerifyNonce}
	nsAny              = []domain.Namespace{
		domain.NSIdentityFound,
		domain.NSAllowVerifyNonce,
		domain.NSAllowSetPassword,
	}
)

type tokenCtxKey struct{}

// currentToken returns the verified capability token attached by
// requireToken.
func currentToken(ctx context.Context) domain.CapabilityToken {
	tok, _ := ctx.Value(tokenCtxKey{}).(domain.CapabilityToken)
	return tok
}

// requireToken gates a handler on a verified capability token in one of the
// allowed namespaces.
//
// A missing, garbled or expired token challenges with 401; a verified token
// in the wrong namespace is refused with 403. The distinction matters: 401
// invites re-authentication, 403 says this capability will never open this
// door.
func (r *Router) requireToken(next http.Handler, allowed ...domain.Namespace) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		raw, ok := r.bearerToken(req)
		if !ok {
			r.writeError(w, ErrInvalidToken)
			return
		}

		tok, err := r.tokens.Verify(req.Context(), raw, allowed...)
		switch {
		case errors.Is(err, service.ErrWrongNamespace):
			r.writeError(w, ErrForbidden)
			return
		case err != nil:
			// Operability: log what the token claimed to be. The claims
			// are unverified and feed nothing but this log line.
			if claims, debugErr := r.tokens.DebugDecode(raw); debugErr == nil {
				slogx.FromContext(req.Context()).Info("rejected token claims",
					slog.Any("claims", claims))
			}
			r.writeError(w, ErrInvalidToken)
			return
		}

		ctx := context.WithValue(req.Context(), tokenCtxKey{}, tok)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// bearerToken extracts the credential from "Authorization: <scheme> <token>".
func (r *Router) bearerToken(req *http.Request) (string, bool) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, r.scheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

// rateLimit applies the store-backed exponential limiter per client
// address. Denials extend the penalty window, so a hammering client locks
// itself out harder with every retry.
func (r *Router) rateLimit(action string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ok, err := r.limiter.Admit(req.Context(), action, httpx.ClientIP(req))
		if err != nil {
			slogx.FromContext(req.Context()).Error("rate limiter unavailable",
				slog.String("error", err.Error()))
			r.writeError(w, ErrServiceUnavailable)
			return
		}
		if !ok {
			r.writeError(w, ErrTooManyRequests.WithDetails("Try again soon."))
			return
		}
		next.ServeHTTP(w, req)
	})
}
