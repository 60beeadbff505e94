// Package service implements the recovery workflow engine: capability token
// minting and gating, SMS one-time codes, and the exponential-penalty rate
// limiter.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/pkg/jwtx"
	"github.com/varden/recover/pkg/slogx"
)

var (
	// ErrInvalidToken covers every token defect that should challenge the
	// caller to re-authenticate: garbled, bad signature, missing claims,
	// outside the validity window.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongNamespace reports a well-formed, verified token presented to
	// an endpoint that demands a different namespace. The caller holds a
	// real capability, just not this one.
	ErrWrongNamespace = errors.New("token namespace not accepted")
)

// SignObserver is notified after each successful signing. Observers must not
// block; anything slow belongs in a goroutine on the observer's side.
type SignObserver func(ns domain.Namespace)

// TokenService mints, verifies and renews the capability tokens that carry
// recovery sessions between requests. The service holds no token state; a
// token is valid iff its signature and claims check out.
type TokenService struct {
	Secret []byte
	Issuer string

	// NotBefore and Expiry are offsets from mint time.
	NotBefore time.Duration
	Expiry    time.Duration

	// Leeway widens the validity window on verification only.
	Leeway time.Duration

	// OnSign observers fire after every successful Mint and Renew.
	OnSign []SignObserver
}

// Mint issues a serialized token granting the identity the single action
// named by the namespace.
func (s *TokenService) Mint(ctx context.Context, ns domain.Namespace, identity string) (string, domain.CapabilityToken, error) {
	tok, err := domain.NewCapabilityToken(ns, identity, s.Issuer, time.Now().UTC(), s.NotBefore, s.Expiry)
	if err != nil {
		return "", domain.CapabilityToken{}, err
	}

	raw, err := s.sign(ctx, tok)
	if err != nil {
		return "", domain.CapabilityToken{}, err
	}
	return raw, tok, nil
}

// Verify checks signature, claims and validity window, then gates on
// namespace. A defective token yields ErrInvalidToken; a valid token in a
// namespace outside allowed yields ErrWrongNamespace.
func (s *TokenService) Verify(ctx context.Context, raw string, allowed ...domain.Namespace) (domain.CapabilityToken, error) {
	l := slogx.FromContext(ctx)

	claims, err := jwtx.Decode(raw, s.Secret, s.Leeway)
	if err != nil {
		l.Info("token verification failed", slog.String("reason", err.Error()))
		return domain.CapabilityToken{}, ErrInvalidToken
	}

	tok, err := tokenFromClaims(claims)
	if err != nil {
		l.Info("token claims unusable", slog.String("reason", err.Error()))
		return domain.CapabilityToken{}, ErrInvalidToken
	}

	for _, ns := range allowed {
		if tok.Namespace == ns {
			return tok, nil
		}
	}

	l.Info("token namespace rejected",
		slog.String("namespace", string(tok.Namespace)),
		slog.String("jti", tok.ID.String()),
	)
	return domain.CapabilityToken{}, ErrWrongNamespace
}

// Renew re-signs the token with a fresh validity window. Namespace, identity
// and jti carry over unchanged, so a renewed token is the same capability
// with more time on the clock.
func (s *TokenService) Renew(ctx context.Context, tok domain.CapabilityToken) (string, domain.CapabilityToken, error) {
	tok.Renew(time.Now().UTC(), s.NotBefore, s.Expiry)

	raw, err := s.sign(ctx, tok)
	if err != nil {
		return "", domain.CapabilityToken{}, err
	}
	return raw, tok, nil
}

// DebugDecode exposes a token's claims without any verification. Diagnostic
// use only; the result must never feed an authorization decision.
func (s *TokenService) DebugDecode(raw string) (map[string]any, error) {
	return jwtx.DebugDecode(raw)
}

func (s *TokenService) sign(ctx context.Context, tok domain.CapabilityToken) (string, error) {
	claims := jwtx.NewClaimsAt(tok.Subject(), tok.Issuer, tok.ID.String(), tok.IssuedAt, tok.NotBefore, tok.ExpiresAt)

	raw, err := jwtx.Encode(claims, s.Secret)
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("capability token signed",
		slog.String("namespace", string(tok.Namespace)),
		slog.String("jti", tok.ID.String()),
		slog.Time("expires_at", tok.ExpiresAt),
	)

	for _, fn := range s.OnSign {
		fn(tok.Namespace)
	}
	return raw, nil
}

func tokenFromClaims(c jwtx.Claims) (domain.CapabilityToken, error) {
	ns, identity, err := domain.ParseSubject(c.Subject)
	if err != nil {
		return domain.CapabilityToken{}, err
	}

	id, err := uuid.Parse(c.ID)
	if err != nil {
		return domain.CapabilityToken{}, err
	}

	return domain.CapabilityToken{
		Namespace: ns,
		Identity:  identity,
		ID:        id,
		IssuedAt:  c.IssuedAt.Time,
		NotBefore: c.NotBefore.Time,
		ExpiresAt: c.ExpiresAt.Time,
		Issuer:    c.Issuer,
	}, nil
}
