package idm

import (
	"context"

	"github.com/varden/recover/internal/recover/domain"
)

// Backend is the raw directory transport the Resolver builds sessions on.
// One method per remote resource, no caching, no policy.
type Backend interface {
	FindPerson(ctx context.Context, idType, idValue string) (domain.PersonID, error)
	GetPerson(ctx context.Context, id domain.PersonID) (domain.Person, error)
	GetPersonAffiliations(ctx context.Context, id domain.PersonID) ([]domain.Affiliation, error)
	GetPersonContacts(ctx context.Context, id domain.PersonID) ([]domain.Contact, error)
	GetPersonConsents(ctx context.Context, id domain.PersonID) ([]domain.Consent, error)
	GetPersonAccounts(ctx context.Context, id domain.PersonID) ([]string, error)

	GetAccountStatus(ctx context.Context, username string) (domain.AccountStatus, error)
	GetQuarantineStatus(ctx context.Context, username string) (domain.QuarantineStatus, error)
	GetAccountTraits(ctx context.Context, username string) ([]domain.Trait, error)
	GetGroupMemberships(ctx context.Context, username string) ([]string, error)

	VerifyPassword(ctx context.Context, username, password string) (bool, error)
	CheckPasswordPolicy(ctx context.Context, username, candidate string) (bool, error)
	SetPassword(ctx context.Context, username, candidate string) error

	Ping(ctx context.Context) error
}
