package idm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/varden/recover/internal/recover/domain"
)

// fakeBackend serves canned directory facts and counts reads per resource,
// so tests can assert both policy outcomes and memoization.
type fakeBackend struct {
	persons      map[domain.PersonID]domain.Person
	affiliations map[domain.PersonID][]domain.Affiliation
	contacts     map[domain.PersonID][]domain.Contact
	consents     map[domain.PersonID][]domain.Consent
	accounts     map[string]domain.AccountStatus
	quarantines  map[string]domain.QuarantineStatus
	traits       map[string][]domain.Trait
	groups       map[string][]string

	calls map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		persons:      map[domain.PersonID]domain.Person{},
		affiliations: map[domain.PersonID][]domain.Affiliation{},
		contacts:     map[domain.PersonID][]domain.Contact{},
		consents:     map[domain.PersonID][]domain.Consent{},
		accounts:     map[string]domain.AccountStatus{},
		quarantines:  map[string]domain.QuarantineStatus{},
		traits:       map[string][]domain.Trait{},
		groups:       map[string][]string{},
		calls:        map[string]int{},
	}
}

func (b *fakeBackend) FindPerson(_ context.Context, idType, idValue string) (domain.PersonID, error) {
	b.calls["find-person"]++
	for id := range b.persons {
		if string(id) == idValue {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (b *fakeBackend) GetPerson(_ context.Context, id domain.PersonID) (domain.Person, error) {
	b.calls["person"]++
	return b.persons[id], nil
}

func (b *fakeBackend) GetPersonAffiliations(_ context.Context, id domain.PersonID) ([]domain.Affiliation, error) {
	b.calls["affiliations"]++
	return b.affiliations[id], nil
}

func (b *fakeBackend) GetPersonContacts(_ context.Context, id domain.PersonID) ([]domain.Contact, error) {
	b.calls["contacts"]++
	return b.contacts[id], nil
}

func (b *fakeBackend) GetPersonConsents(_ context.Context, id domain.PersonID) ([]domain.Consent, error) {
	b.calls["consents"]++
	return b.consents[id], nil
}

func (b *fakeBackend) GetPersonAccounts(_ context.Context, id domain.PersonID) ([]string, error) {
	b.calls["accounts-of-person"]++
	return nil, nil
}

func (b *fakeBackend) GetAccountStatus(_ context.Context, username string) (domain.AccountStatus, error) {
	b.calls["account-status"]++
	return b.accounts[username], nil
}

func (b *fakeBackend) GetQuarantineStatus(_ context.Context, username string) (domain.QuarantineStatus, error) {
	b.calls["quarantine-status"]++
	return b.quarantines[username], nil
}

func (b *fakeBackend) GetAccountTraits(_ context.Context, username string) ([]domain.Trait, error) {
	b.calls["traits"]++
	return b.traits[username], nil
}

func (b *fakeBackend) GetGroupMemberships(_ context.Context, username string) ([]string, error) {
	b.calls["groups"]++
	return b.groups[username], nil
}

func (b *fakeBackend) VerifyPassword(_ context.Context, username, password string) (bool, error) {
	return false, nil
}

func (b *fakeBackend) CheckPasswordPolicy(_ context.Context, username, candidate string) (bool, error) {
	return true, nil
}

func (b *fakeBackend) SetPassword(_ context.Context, username, candidate string) error {
	return nil
}

func (b *fakeBackend) Ping(context.Context) error { return nil }

func newTestResolver(b Backend, cfg Config) *Resolver {
	r := NewResolver(b, cfg)
	r.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return r
}

func daysAgo(r *Resolver, days int) *time.Time {
	t := r.now().AddDate(0, 0, -days)
	return &t
}

func TestResolvePersonRejectsUnknownIDType(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.persons["p1"] = domain.Person{ID: "p1"}

	r := newTestResolver(b, Config{PersonIDTypes: []string{"student-number"}})
	s := r.NewSession()
	ctx := context.Background()

	_, err := s.ResolvePerson(ctx, "passport-number", "p1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, b.calls["find-person"], "unknown id type must not reach the backend")

	id, err := s.ResolvePerson(ctx, "student-number", "p1")
	require.NoError(t, err)
	require.Equal(t, domain.PersonID("p1"), id)
}

func TestCanUseSMSServiceDenialOrder(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ReservedGroups:      []string{"no-recovery"},
		AcceptedQuarantines: []string{"harmless"},
	}
	ctx := context.Background()

	// The account below each step also fails every later check, proving the
	// first check in the fixed order names the reason.
	t.Run("inactive account wins", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: false}
		b.quarantines["u"] = domain.QuarantineStatus{Quarantines: []domain.Quarantine{{Type: "bad"}}}
		b.groups["u"] = []string{"no-recovery"}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitPaswReserved, Number: 1}}

		err := newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u")
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		require.Equal(t, DenyInactiveAccount, denied.Reason)
	})

	t.Run("quarantine before groups", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
		b.quarantines["u"] = domain.QuarantineStatus{Quarantines: []domain.Quarantine{{Type: "bad"}}}
		b.groups["u"] = []string{"no-recovery"}

		err := newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u")
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		require.Equal(t, DenyQuarantined, denied.Reason)
	})

	t.Run("group before self-reservation", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
		b.groups["u"] = []string{"innocuous", "no-recovery"}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitPaswReserved, Number: 1}}

		err := newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u")
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		require.Equal(t, DenyReservedByGroup, denied.Reason)
	})

	t.Run("self-reservation", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitPaswReserved, Number: 1}}

		err := newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u")
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		require.Equal(t, DenyReservedBySelf, denied.Reason)
	})

	t.Run("accepted quarantine does not deny", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
		b.quarantines["u"] = domain.QuarantineStatus{Quarantines: []domain.Quarantine{{Type: "harmless"}}}

		require.NoError(t, newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u"))
	})

	t.Run("cleared self-reservation does not deny", func(t *testing.T) {
		b := newFakeBackend()
		b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitPaswReserved, Number: 0}}

		require.NoError(t, newTestResolver(b, cfg).NewSession().CanUseSMSService(ctx, "p", "u"))
	})
}

func TestGetMobileNumbersPriorityOrder(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.affiliations["p"] = []domain.Affiliation{
		{SourceSystem: "A"},
		{SourceSystem: "B"},
	}
	b.contacts["p"] = []domain.Contact{
		{SourceSystem: "A", Type: "cell", Value: "num1"},
		{SourceSystem: "B", Type: "cell", Value: "num2"},
	}

	cfg := Config{
		ContactRules: []domain.ContactRule{
			{System: "A", Type: "cell"},
			{System: "B", Type: "cell"},
		},
		SourceSystemPriorities: []string{"B", "A"},
	}

	numbers, err := newTestResolver(b, cfg).NewSession().GetMobileNumbers(context.Background(), "p", "u")
	require.NoError(t, err)
	require.Equal(t, []string{"num2"}, numbers, "the prioritized system must win, never a merge")
}

func TestGetMobileNumbersPrioritySkipsBarrenSystems(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.affiliations["p"] = []domain.Affiliation{
		{SourceSystem: "A"},
		{SourceSystem: "B"},
	}
	// B has a valid affiliation but no acceptable contact, so A contributes.
	b.contacts["p"] = []domain.Contact{
		{SourceSystem: "A", Type: "cell", Value: "num1"},
		{SourceSystem: "B", Type: "fax", Value: "num2"},
	}

	cfg := Config{
		ContactRules: []domain.ContactRule{
			{System: "A", Type: "cell"},
			{System: "B", Type: "cell"},
		},
		SourceSystemPriorities: []string{"B", "A"},
	}

	numbers, err := newTestResolver(b, cfg).NewSession().GetMobileNumbers(context.Background(), "p", "u")
	require.NoError(t, err)
	require.Equal(t, []string{"num1"}, numbers)
}

func TestGetMobileNumbersMergeWithoutPriorities(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ContactRules: []domain.ContactRule{
			{System: "A", Type: "cell"},
			{System: "B", Type: "cell"},
		},
		AffiliationGraceDays: 7,
	}

	b := newFakeBackend()
	r := newTestResolver(b, cfg)

	b.affiliations["p"] = []domain.Affiliation{
		{SourceSystem: "A"},
		{SourceSystem: "B", DeletedAt: daysAgo(r, 30)},
	}
	b.contacts["p"] = []domain.Contact{
		{SourceSystem: "A", Type: "cell", Value: "num1"},
		{SourceSystem: "A", Type: "fax", Value: "ignored"},
		{SourceSystem: "B", Type: "cell", Value: "num2"},
	}

	// B's affiliation lapsed past the grace period, so only A contributes.
	numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
	require.NoError(t, err)
	require.Equal(t, []string{"num1"}, numbers)
}

func TestGetMobileNumbersAffiliationGrace(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ContactRules:         []domain.ContactRule{{System: "A", Type: "cell"}},
		AffiliationGraceDays: 7,
	}

	b := newFakeBackend()
	r := newTestResolver(b, cfg)

	b.affiliations["p"] = []domain.Affiliation{{SourceSystem: "A", DeletedAt: daysAgo(r, 3)}}
	b.contacts["p"] = []domain.Contact{{SourceSystem: "A", Type: "cell", Value: "num1"}}

	numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
	require.NoError(t, err)
	require.Equal(t, []string{"num1"}, numbers, "recently deleted affiliation still counts")
}

func TestGetMobileNumbersDelayAndFreshness(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ContactRules: []domain.ContactRule{{System: "A", Type: "cell", DelayDays: 14}},
		FreshDays:    10,
	}

	setup := func() (*fakeBackend, *Resolver) {
		b := newFakeBackend()
		r := newTestResolver(b, cfg)
		b.affiliations["p"] = []domain.Affiliation{{SourceSystem: "A"}}
		return b, r
	}

	t.Run("recently modified contact is held back", func(t *testing.T) {
		b, r := setup()
		b.contacts["p"] = []domain.Contact{
			{SourceSystem: "A", Type: "cell", Value: "num1", LastModified: daysAgo(r, 2)},
		}

		numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
		require.NoError(t, err)
		require.Empty(t, numbers)
	})

	t.Run("old contact passes the delay", func(t *testing.T) {
		b, r := setup()
		b.contacts["p"] = []domain.Contact{
			{SourceSystem: "A", Type: "cell", Value: "num1", LastModified: daysAgo(r, 30)},
		}

		numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
		require.NoError(t, err)
		require.Equal(t, []string{"num1"}, numbers)
	})

	t.Run("fresh account bypasses the delay", func(t *testing.T) {
		b, r := setup()
		b.contacts["p"] = []domain.Contact{
			{SourceSystem: "A", Type: "cell", Value: "num1", LastModified: daysAgo(r, 2)},
		}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitSMSWelcome, Date: daysAgo(r, 3)}}

		numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
		require.NoError(t, err)
		require.Equal(t, []string{"num1"}, numbers)
	})

	t.Run("fresh person bypasses the delay", func(t *testing.T) {
		b, r := setup()
		b.contacts["p"] = []domain.Contact{
			{SourceSystem: "A", Type: "cell", Value: "num1", LastModified: daysAgo(r, 2)},
		}
		b.persons["p"] = domain.Person{ID: "p", CreatedAt: daysAgo(r, 5)}

		numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
		require.NoError(t, err)
		require.Equal(t, []string{"num1"}, numbers)
	})

	t.Run("stale freshness trait does not bypass", func(t *testing.T) {
		b, r := setup()
		b.contacts["p"] = []domain.Contact{
			{SourceSystem: "A", Type: "cell", Value: "num1", LastModified: daysAgo(r, 2)},
		}
		b.traits["u"] = []domain.Trait{{Name: domain.TraitNewStudent, Date: daysAgo(r, 60)}}

		numbers, err := r.NewSession().GetMobileNumbers(context.Background(), "p", "u")
		require.NoError(t, err)
		require.Empty(t, numbers)
	})
}

func TestGetPreferredMobileNumber(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.contacts["p"] = []domain.Contact{
		{SourceSystem: "B", Type: "cell", Value: "num2"},
		{SourceSystem: "A", Type: "cell", Value: "num1"},
	}

	// Rule order decides, not contact order and not source priorities.
	cfg := Config{
		ContactRules: []domain.ContactRule{
			{System: "A", Type: "cell", DelayDays: 14},
			{System: "B", Type: "cell"},
		},
		SourceSystemPriorities: []string{"B", "A"},
	}

	s := newTestResolver(b, cfg).NewSession()

	number, err := s.GetPreferredMobileNumber(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "num1", number)

	_, err = s.GetPreferredMobileNumber(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCanShowUsernames(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.consents["open"] = []domain.Consent{{Name: "digital-exam"}}
	b.consents["hidden"] = []domain.Consent{{Name: domain.ConsentPublication}}

	s := newTestResolver(b, Config{}).NewSession()
	ctx := context.Background()

	ok, err := s.CanShowUsernames(ctx, "open")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CanShowUsernames(ctx, "hidden")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAuthenticate(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.accounts["active"] = domain.AccountStatus{Username: "active", Active: true}
	b.accounts["locked"] = domain.AccountStatus{Username: "locked", Active: true}
	b.quarantines["locked"] = domain.QuarantineStatus{Locked: true}
	b.accounts["inactive"] = domain.AccountStatus{Username: "inactive", Active: false}

	s := newTestResolver(b, Config{}).NewSession()
	ctx := context.Background()

	for username, want := range map[string]bool{
		"active":   true,
		"locked":   false,
		"inactive": false,
	} {
		ok, err := s.CanAuthenticate(ctx, username)
		require.NoError(t, err)
		require.Equal(t, want, ok, "username %q", username)
	}
}

func TestSessionMemoizesBackendReads(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.accounts["u"] = domain.AccountStatus{Username: "u", Active: true}
	b.affiliations["p"] = []domain.Affiliation{{SourceSystem: "A"}}
	b.contacts["p"] = []domain.Contact{{SourceSystem: "A", Type: "cell", Value: "num1"}}

	cfg := Config{ContactRules: []domain.ContactRule{{System: "A", Type: "cell"}}}
	r := newTestResolver(b, cfg)
	s := r.NewSession()
	ctx := context.Background()

	require.NoError(t, s.CanUseSMSService(ctx, "p", "u"))
	_, err := s.GetMobileNumbers(ctx, "p", "u")
	require.NoError(t, err)
	_, err = s.GetMobileNumbers(ctx, "p", "u")
	require.NoError(t, err)

	for _, resource := range []string{"account-status", "traits", "contacts", "affiliations"} {
		require.Equal(t, 1, b.calls[resource], "resource %q", resource)
	}

	// A fresh session starts a fresh snapshot.
	require.NoError(t, r.NewSession().CanUseSMSService(ctx, "p", "u"))
	require.Equal(t, 2, b.calls["account-status"])
}
