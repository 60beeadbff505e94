// Package jwtx signs and verifies the HS512 capability tokens that gate the
// recovery workflow. A token carries only registered claims; the authorized
// action and subject are packed into the sub claim by the caller.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default claim offsets, relative to iat. Deliberately short: a capability
// token authorizes exactly one follow-up request.
const (
	// DefaultExpiry is the default exp offset.
	DefaultExpiry = 5 * time.Minute

	// DefaultNotBefore is the default nbf offset.
	DefaultNotBefore = 0 * time.Second

	// DefaultLeeway is the default clock-skew allowance for nbf/exp checks.
	DefaultLeeway = 1 * time.Second
)

// Claims are the registered claims carried by a capability token. All of
// jti, iat, nbf, exp and sub are mandatory on decode; iss is optional.
type Claims struct {
	jwt.RegisteredClaims
}

// NewClaims builds a claim set with sub/iss as given and nbf/exp resolved
// to absolute instants relative to now.
func NewClaims(subject, issuer string, jti string, now time.Time, nbf, exp time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(nbf)),
			ExpiresAt: jwt.NewNumericDate(now.Add(exp)),
		},
	}
}

// NewClaimsAt builds a claim set from absolute instants, for callers that
// manage the validity window themselves.
func NewClaimsAt(subject, issuer, jti string, iat, nbf, exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(nbf),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

// requireAll checks that every mandatory claim is present. Absence of any of
// them is a verification failure, never a default.
func (c *Claims) requireAll() error {
	switch {
	case c.ID == "":
		return ErrMissingClaim
	case c.Subject == "":
		return ErrMissingClaim
	case c.IssuedAt == nil:
		return ErrMissingClaim
	case c.NotBefore == nil:
		return ErrMissingClaim
	case c.ExpiresAt == nil:
		return ErrMissingClaim
	}
	return nil
}

// ValidateWindow ensures now lies within [nbf-leeway, exp+leeway].
func (c *Claims) ValidateWindow(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
