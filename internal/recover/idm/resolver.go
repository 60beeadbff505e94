package idm

import (
	"context"
	"slices"
	"time"

	"github.com/varden/recover/internal/recover/domain"
)

// Config is the eligibility rule set. It is data, not code: which contact
// records count, how stale they must be, which quarantines are harmless and
// which groups or traits reserve an account out of SMS recovery.
type Config struct {
	// PersonIDTypes are the accepted external id types for person lookup.
	PersonIDTypes []string

	// ReservedGroups deny SMS recovery to any (direct or indirect) member.
	ReservedGroups []string

	// ContactRules is the ordered table of acceptable (source system,
	// contact type) pairs. The order matters for preferred-number picks.
	ContactRules []domain.ContactRule

	// FreshDays is the window within which a created or welcomed entity
	// counts as fresh, bypassing contact-rule delays.
	FreshDays int

	// AffiliationGraceDays keeps a deleted affiliation valid this long.
	AffiliationGraceDays int

	// SourceSystemPriorities, when set, restricts numbers to the first
	// listed system with a valid affiliation and at least one valid
	// contact. Empty means merge across all systems.
	SourceSystemPriorities []string

	// AcceptedQuarantines are quarantine types that do not block recovery.
	AcceptedQuarantines []string
}

// Resolver answers eligibility questions over a Backend. It implements
// Client; each NewSession starts a fresh memoized snapshot.
type Resolver struct {
	backend Backend
	cfg     Config

	// now is swappable for freshness and grace-period tests.
	now func() time.Time
}

var _ Client = (*Resolver)(nil)

func NewResolver(backend Backend, cfg Config) *Resolver {
	return &Resolver{backend: backend, cfg: cfg, now: time.Now}
}

func (r *Resolver) NewSession() Session {
	return &session{
		r:            r,
		persons:      map[domain.PersonID]domain.Person{},
		affiliations: map[domain.PersonID][]domain.Affiliation{},
		contacts:     map[domain.PersonID][]domain.Contact{},
		consents:     map[domain.PersonID][]domain.Consent{},
		usernames:    map[domain.PersonID][]string{},
		accounts:     map[string]domain.AccountStatus{},
		quarantines:  map[string]domain.QuarantineStatus{},
		traits:       map[string][]domain.Trait{},
		groups:       map[string][]string{},
	}
}

func (r *Resolver) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// session memoizes backend reads for the lifetime of one request. Not safe
// for concurrent use; a request handler is single-threaded per request.
type session struct {
	r *Resolver

	persons      map[domain.PersonID]domain.Person
	affiliations map[domain.PersonID][]domain.Affiliation
	contacts     map[domain.PersonID][]domain.Contact
	consents     map[domain.PersonID][]domain.Consent
	usernames    map[domain.PersonID][]string
	accounts     map[string]domain.AccountStatus
	quarantines  map[string]domain.QuarantineStatus
	traits       map[string][]domain.Trait
	groups       map[string][]string
}

var _ Session = (*session)(nil)

func (s *session) ResolvePerson(ctx context.Context, idType, idValue string) (domain.PersonID, error) {
	if !slices.Contains(s.r.cfg.PersonIDTypes, idType) {
		return "", ErrNotFound
	}
	return s.r.backend.FindPerson(ctx, idType, idValue)
}

func (s *session) GetUsernames(ctx context.Context, id domain.PersonID) ([]string, error) {
	if names, ok := s.usernames[id]; ok {
		return names, nil
	}
	names, err := s.r.backend.GetPersonAccounts(ctx, id)
	if err != nil {
		return nil, err
	}
	s.usernames[id] = names
	return names, nil
}

func (s *session) CanShowUsernames(ctx context.Context, id domain.PersonID) (bool, error) {
	consents, err := s.getConsents(ctx, id)
	if err != nil {
		return false, err
	}
	for _, c := range consents {
		if c.Name == domain.ConsentPublication {
			return false, nil
		}
	}
	return true, nil
}

// CanUseSMSService evaluates the denial checks in fixed order; the first
// failing check names the reason. The order is part of the contract, it
// determines which reason an auditor sees for a multiply-disqualified
// account.
func (s *session) CanUseSMSService(ctx context.Context, id domain.PersonID, username string) error {
	status, err := s.getAccountStatus(ctx, username)
	if err != nil {
		return err
	}
	if !status.Active {
		return &DeniedError{Reason: DenyInactiveAccount}
	}

	qs, err := s.getQuarantineStatus(ctx, username)
	if err != nil {
		return err
	}
	for _, q := range qs.Quarantines {
		if q.Type != "" && !slices.Contains(s.r.cfg.AcceptedQuarantines, q.Type) {
			return &DeniedError{Reason: DenyQuarantined}
		}
	}

	groups, err := s.getGroups(ctx, username)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if slices.Contains(s.r.cfg.ReservedGroups, g) {
			return &DeniedError{Reason: DenyReservedByGroup}
		}
	}

	traits, err := s.getTraits(ctx, username)
	if err != nil {
		return err
	}
	for _, t := range traits {
		if t.Name == domain.TraitPaswReserved && t.Number == 1 {
			return &DeniedError{Reason: DenyReservedBySelf}
		}
	}

	return nil
}

// GetMobileNumbers applies the contact rules, affiliation validity and
// source-system priorities to the person's contact records.
func (s *session) GetMobileNumbers(ctx context.Context, id domain.PersonID, username string) ([]string, error) {
	contacts, err := s.getContacts(ctx, id)
	if err != nil {
		return nil, err
	}

	fresh, err := s.isFresh(ctx, id, username)
	if err != nil {
		return nil, err
	}

	affiliations, err := s.getAffiliations(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(s.r.cfg.SourceSystemPriorities) == 0 {
		var numbers []string
		for _, c := range contacts {
			if s.contactIsValid(c, fresh) && s.hasValidAffiliationFrom(affiliations, c.SourceSystem) {
				numbers = append(numbers, c.Value)
			}
		}
		return numbers, nil
	}

	// Priorities configured: only the first system with a valid affiliation
	// and at least one valid contact contributes, never a merge.
	for _, system := range s.r.cfg.SourceSystemPriorities {
		if !s.hasValidAffiliationFrom(affiliations, system) {
			continue
		}
		var numbers []string
		for _, c := range contacts {
			if c.SourceSystem == system && s.contactIsValid(c, fresh) {
				numbers = append(numbers, c.Value)
			}
		}
		if len(numbers) > 0 {
			return numbers, nil
		}
	}
	return nil, nil
}

// GetPreferredMobileNumber picks by configured contact-type order alone.
// No freshness or priority filtering: this number only ever receives a
// notification, it never authenticates anyone.
func (s *session) GetPreferredMobileNumber(ctx context.Context, id domain.PersonID) (string, error) {
	contacts, err := s.getContacts(ctx, id)
	if err != nil {
		return "", err
	}

	for _, rule := range s.r.cfg.ContactRules {
		for _, c := range contacts {
			if rule.Matches(c) {
				return c.Value, nil
			}
		}
	}
	return "", ErrNotFound
}

func (s *session) CanAuthenticate(ctx context.Context, username string) (bool, error) {
	status, err := s.getAccountStatus(ctx, username)
	if err != nil {
		return false, err
	}
	if !status.Active {
		return false, nil
	}

	qs, err := s.getQuarantineStatus(ctx, username)
	if err != nil {
		return false, err
	}
	return !qs.Locked, nil
}

func (s *session) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	return s.r.backend.VerifyPassword(ctx, username, password)
}

func (s *session) CheckPasswordPolicy(ctx context.Context, username, candidate string) (bool, error) {
	return s.r.backend.CheckPasswordPolicy(ctx, username, candidate)
}

func (s *session) SetPassword(ctx context.Context, username, candidate string) error {
	return s.r.backend.SetPassword(ctx, username, candidate)
}

// contactIsValid checks a contact against the rule table. A matched rule
// with a delay only admits records older than the delay, unless the entity
// is fresh or the record carries no modification time.
func (s *session) contactIsValid(c domain.Contact, fresh bool) bool {
	for _, rule := range s.r.cfg.ContactRules {
		if !rule.Matches(c) {
			continue
		}
		if rule.DelayDays == 0 || fresh {
			return true
		}
		if c.LastModified == nil {
			return true
		}
		cutoff := s.r.now().AddDate(0, 0, -rule.DelayDays)
		return c.LastModified.Before(cutoff)
	}
	return false
}

func (s *session) hasValidAffiliationFrom(affiliations []domain.Affiliation, system string) bool {
	for _, a := range affiliations {
		if a.SourceSystem != system {
			continue
		}
		if a.DeletedAt == nil {
			return true
		}
		cutoff := s.r.now().AddDate(0, 0, -s.r.cfg.AffiliationGraceDays)
		if a.DeletedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *session) isFresh(ctx context.Context, id domain.PersonID, username string) (bool, error) {
	accountFresh, err := s.accountIsFresh(ctx, username)
	if err != nil {
		return false, err
	}
	if accountFresh {
		return true, nil
	}
	return s.personIsFresh(ctx, id)
}

func (s *session) accountIsFresh(ctx context.Context, username string) (bool, error) {
	traits, err := s.getTraits(ctx, username)
	if err != nil {
		return false, err
	}

	cutoff := s.r.now().AddDate(0, 0, -s.r.cfg.FreshDays)
	for _, t := range traits {
		if t.Date == nil {
			continue
		}
		if (t.Name == domain.TraitNewStudent || t.Name == domain.TraitSMSWelcome) && t.Date.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *session) personIsFresh(ctx context.Context, id domain.PersonID) (bool, error) {
	person, err := s.getPerson(ctx, id)
	if err != nil {
		return false, err
	}
	if person.CreatedAt == nil {
		return false, nil
	}
	cutoff := s.r.now().AddDate(0, 0, -s.r.cfg.FreshDays)
	return person.CreatedAt.After(cutoff), nil
}

func (s *session) getPerson(ctx context.Context, id domain.PersonID) (domain.Person, error) {
	if p, ok := s.persons[id]; ok {
		return p, nil
	}
	p, err := s.r.backend.GetPerson(ctx, id)
	if err != nil {
		return domain.Person{}, err
	}
	s.persons[id] = p
	return p, nil
}

func (s *session) getAffiliations(ctx context.Context, id domain.PersonID) ([]domain.Affiliation, error) {
	if a, ok := s.affiliations[id]; ok {
		return a, nil
	}
	a, err := s.r.backend.GetPersonAffiliations(ctx, id)
	if err != nil {
		return nil, err
	}
	s.affiliations[id] = a
	return a, nil
}

func (s *session) getContacts(ctx context.Context, id domain.PersonID) ([]domain.Contact, error) {
	if c, ok := s.contacts[id]; ok {
		return c, nil
	}
	c, err := s.r.backend.GetPersonContacts(ctx, id)
	if err != nil {
		return nil, err
	}
	s.contacts[id] = c
	return c, nil
}

func (s *session) getConsents(ctx context.Context, id domain.PersonID) ([]domain.Consent, error) {
	if c, ok := s.consents[id]; ok {
		return c, nil
	}
	c, err := s.r.backend.GetPersonConsents(ctx, id)
	if err != nil {
		return nil, err
	}
	s.consents[id] = c
	return c, nil
}

func (s *session) getAccountStatus(ctx context.Context, username string) (domain.AccountStatus, error) {
	if a, ok := s.accounts[username]; ok {
		return a, nil
	}
	a, err := s.r.backend.GetAccountStatus(ctx, username)
	if err != nil {
		return domain.AccountStatus{}, err
	}
	s.accounts[username] = a
	return a, nil
}

func (s *session) getQuarantineStatus(ctx context.Context, username string) (domain.QuarantineStatus, error) {
	if q, ok := s.quarantines[username]; ok {
		return q, nil
	}
	q, err := s.r.backend.GetQuarantineStatus(ctx, username)
	if err != nil {
		return domain.QuarantineStatus{}, err
	}
	s.quarantines[username] = q
	return q, nil
}

func (s *session) getTraits(ctx context.Context, username string) ([]domain.Trait, error) {
	if t, ok := s.traits[username]; ok {
		return t, nil
	}
	t, err := s.r.backend.GetAccountTraits(ctx, username)
	if err != nil {
		return nil, err
	}
	s.traits[username] = t
	return t, nil
}

func (s *session) getGroups(ctx context.Context, username string) ([]string, error) {
	if g, ok := s.groups[username]; ok {
		return g, nil
	}
	g, err := s.r.backend.GetGroupMemberships(ctx, username)
	if err != nil {
		return nil, err
	}
	s.groups[username] = g
	return g, nil
}
