// Package idm defines the identity directory contract consumed by the
// recovery workflow: person lookup, account facts, eligibility answers and
// password operations.
//
// The directory is always remote; every operation can fail with network
// semantics. Handlers consume a per-request Session so that repeated reads
// within one resolution hit a consistent, memoized snapshot.
package idm

import (
	"context"
	"errors"

	"github.com/varden/recover/internal/recover/domain"
)

// ErrNotFound reports a person, account or contact lookup miss.
var ErrNotFound = errors.New("idm: not found")

// DenyReason codes why an account may not use SMS recovery. The codes are
// part of the API surface; callers see them verbatim in error details.
type DenyReason string

const (
	DenyInactiveAccount DenyReason = "inactive-account"
	DenyQuarantined     DenyReason = "quarantined"
	DenyReservedByGroup DenyReason = "reserved-by-group-membership"
	DenyReservedBySelf  DenyReason = "reserved-by-self"
)

// DeniedError reports that an account failed an eligibility check, with the
// first failing check's reason.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return "idm: sms service denied: " + string(e.Reason)
}

// Client vends per-request directory sessions.
type Client interface {
	NewSession() Session

	// Ping verifies the directory is reachable.
	Ping(ctx context.Context) error
}

// Session is a request-scoped view of the directory. Reads are memoized for
// the session's lifetime; a session must not outlive its request.
type Session interface {
	// ResolvePerson finds the person holding an external id of the given
	// type. Unknown id types and missing persons both yield ErrNotFound.
	ResolvePerson(ctx context.Context, idType, idValue string) (domain.PersonID, error)

	// GetUsernames lists the person's account names.
	GetUsernames(ctx context.Context, id domain.PersonID) ([]string, error)

	// CanShowUsernames reports whether the person's usernames may be
	// disclosed in a response body. False means the person opted out of
	// publication and must be served out-of-band instead.
	CanShowUsernames(ctx context.Context, id domain.PersonID) (bool, error)

	// GetMobileNumbers lists the phone numbers acceptable for
	// authentication, per the configured contact rules, affiliation grace
	// and source-system priorities.
	GetMobileNumbers(ctx context.Context, id domain.PersonID, username string) ([]string, error)

	// GetPreferredMobileNumber picks the number to notify (never to
	// authenticate): the first contact matching the configured contact
	// types, in configured order. ErrNotFound when nothing matches.
	GetPreferredMobileNumber(ctx context.Context, id domain.PersonID) (string, error)

	// CanUseSMSService checks eligibility for SMS recovery. A nil return
	// means eligible; an ineligible account yields a *DeniedError with the
	// first failing check's reason.
	CanUseSMSService(ctx context.Context, id domain.PersonID, username string) error

	// CanAuthenticate reports whether the account may authenticate with a
	// password at all (active and not locked).
	CanAuthenticate(ctx context.Context, username string) (bool, error)

	// VerifyPassword checks the account's current password.
	VerifyPassword(ctx context.Context, username, password string) (bool, error)

	// CheckPasswordPolicy reports whether a candidate password passes the
	// directory's password rules.
	CheckPasswordPolicy(ctx context.Context, username, candidate string) (bool, error)

	// SetPassword changes the account's password.
	SetPassword(ctx context.Context, username, candidate string) error
}
