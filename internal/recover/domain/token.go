// Package domain holds the value types shared across the recovery service:
// the capability token and the identity-directory fact records.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace names the single action a capability token authorizes. It doubles
// as the workflow state label: holding a token in namespace X means the
// session is in state X.
type Namespace string

const (
	// NSIdentityFound is held after a person has been identified
	// (username-listing flow).
	NSIdentityFound Namespace = "identity-found"

	// NSAllowVerifyNonce is held after an SMS one-time code has been
	// dispatched; identity is the compound "<username>:<mobile>" key.
	NSAllowVerifyNonce Namespace = "allow-verify-nonce"

	// NSAllowSetPassword is held after the caller proved control of the
	// account (password re-entry or correct nonce); identity is the username.
	NSAllowSetPassword Namespace = "allow-set-password"
)

// ErrBadSubject reports a subject claim that cannot be split into
// namespace and identity.
var ErrBadSubject = errors.New("domain: malformed token subject")

// ErrBadNamespace reports a namespace that cannot be serialized safely.
var ErrBadNamespace = errors.New("domain: namespace must not contain ':'")

// CapabilityToken is a signed, namespaced, expiring claim authorizing one
// follow-up action. Immutable except through Renew.
type CapabilityToken struct {
	Namespace Namespace
	Identity  string
	ID        uuid.UUID
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
	Issuer    string
}

// NewCapabilityToken mints a token with a fresh ID and nbf/exp resolved
// relative to now.
//
// The namespace must not contain a colon: namespace and identity are
// serialized jointly as "<namespace>:<identity>" and parsed back by
// splitting on the first colon, so a colon in the namespace would shift the
// boundary. Identities MAY contain colons (the SMS flow relies on it); only
// the first colon in the subject is structural.
func NewCapabilityToken(ns Namespace, identity, issuer string, now time.Time, nbf, exp time.Duration) (CapabilityToken, error) {
	if strings.Contains(string(ns), ":") {
		return CapabilityToken{}, ErrBadNamespace
	}

	return CapabilityToken{
		Namespace: ns,
		Identity:  identity,
		ID:        uuid.New(),
		IssuedAt:  now,
		NotBefore: now.Add(nbf),
		ExpiresAt: now.Add(exp),
		Issuer:    issuer,
	}, nil
}

// Subject serializes namespace and identity into the compound subject claim.
func (t CapabilityToken) Subject() string {
	return string(t.Namespace) + ":" + t.Identity
}

// ParseSubject splits a compound subject on the first colon.
func ParseSubject(sub string) (Namespace, string, error) {
	ns, identity, ok := strings.Cut(sub, ":")
	if !ok || ns == "" {
		return "", "", ErrBadSubject
	}
	return Namespace(ns), identity, nil
}

// Renew recomputes nbf/exp from now while preserving ID, Namespace and
// Identity. IssuedAt is untouched.
func (t *CapabilityToken) Renew(now time.Time, nbf, exp time.Duration) {
	t.NotBefore = now.Add(nbf)
	t.ExpiresAt = now.Add(exp)
}

// SMSIdentity joins username and mobile into the compound identity used by
// the allow-verify-nonce namespace.
func SMSIdentity(username, mobile string) string {
	return username + ":" + mobile
}

// SplitSMSIdentity recovers username and mobile from a compound identity.
func SplitSMSIdentity(identity string) (username, mobile string, err error) {
	username, mobile, ok := strings.Cut(identity, ":")
	if !ok || username == "" || mobile == "" {
		return "", "", ErrBadSubject
	}
	return username, mobile, nil
}
