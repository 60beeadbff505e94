// Package mock provides an in-memory identity directory for local runs and
// handler tests. It answers the high-level eligibility questions directly
// from its dataset instead of deriving them from raw directory facts.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
)

// Person is a mock directory person.
type Person struct {
	StudentNumber string
	Usernames     []string
	Mobile        []string
	HideUsernames bool
}

// Account is a mock directory account.
type Account struct {
	Password  string
	CanUseSMS bool
	Locked    bool
}

// Client is a mutable in-memory directory. Safe for concurrent use.
type Client struct {
	mu       sync.RWMutex
	persons  map[domain.PersonID]*Person
	accounts map[string]*Account
}

var (
	_ idm.Client  = (*Client)(nil)
	_ idm.Session = (*Client)(nil)
)

// NewClient builds a directory preloaded with a small test population.
func NewClient() *Client {
	c := &Client{
		persons:  map[domain.PersonID]*Person{},
		accounts: map[string]*Account{},
	}

	c.AddPerson("1", &Person{
		StudentNumber: "111111",
		Usernames:     []string{"foo", "bar"},
		Mobile:        []string{"+4720000000", "+4791000000"},
	})
	c.AddPerson("2", &Person{
		StudentNumber: "222222",
		Usernames:     []string{"baz"},
		Mobile:        []string{"+4720000002"},
		HideUsernames: true,
	})
	c.AddAccount("foo", &Account{Password: "hunter2", CanUseSMS: true})
	c.AddAccount("bar", &Account{Password: "hunter2"})
	c.AddAccount("baz", &Account{Password: "hunter2"})

	return c
}

// NewEmptyClient builds a directory with no data, for tests that load their
// own population.
func NewEmptyClient() *Client {
	return &Client{
		persons:  map[domain.PersonID]*Person{},
		accounts: map[string]*Account{},
	}
}

func (c *Client) AddPerson(id domain.PersonID, p *Person) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persons[id] = p
}

func (c *Client) AddAccount(username string, a *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[username] = a
}

// Password returns the account's current password. Test hook.
func (c *Client) Password(username string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.accounts[username]; ok {
		return a.Password
	}
	return ""
}

// NewSession returns the client itself; an in-memory read is already as
// consistent as a memoized snapshot.
func (c *Client) NewSession() idm.Session { return c }

func (c *Client) Ping(context.Context) error { return nil }

func (c *Client) ResolvePerson(_ context.Context, idType, idValue string) (domain.PersonID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.persons[domain.PersonID(idValue)]; ok {
		return domain.PersonID(idValue), nil
	}
	for id, p := range c.persons {
		if p.StudentNumber == idValue {
			return id, nil
		}
	}
	return "", idm.ErrNotFound
}

func (c *Client) GetUsernames(_ context.Context, id domain.PersonID) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.persons[id]; ok {
		return slices.Clone(p.Usernames), nil
	}
	return nil, nil
}

func (c *Client) CanShowUsernames(_ context.Context, id domain.PersonID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.persons[id]; ok {
		return !p.HideUsernames, nil
	}
	return true, nil
}

func (c *Client) GetMobileNumbers(_ context.Context, id domain.PersonID, _ string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.persons[id]; ok {
		return slices.Clone(p.Mobile), nil
	}
	return nil, nil
}

func (c *Client) GetPreferredMobileNumber(_ context.Context, id domain.PersonID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.persons[id]; ok && len(p.Mobile) > 0 {
		return p.Mobile[0], nil
	}
	return "", idm.ErrNotFound
}

func (c *Client) CanUseSMSService(_ context.Context, _ domain.PersonID, username string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if a, ok := c.accounts[username]; ok && a.CanUseSMS {
		return nil
	}
	return &idm.DeniedError{Reason: idm.DenyReservedBySelf}
}

func (c *Client) CanAuthenticate(_ context.Context, username string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if a, ok := c.accounts[username]; ok {
		return !a.Locked, nil
	}
	return false, nil
}

func (c *Client) VerifyPassword(_ context.Context, username, password string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.accounts[username]
	return ok && a.Password == password, nil
}

// validPasswords is the mock's whole password policy.
var validPasswords = []string{"hunter2", "password1", "fido5", "secret", "testtesttesttesttest"}

func (c *Client) CheckPasswordPolicy(_ context.Context, _ string, candidate string) (bool, error) {
	return slices.Contains(validPasswords, candidate), nil
}

func (c *Client) SetPassword(_ context.Context, username, candidate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[username]
	if !ok {
		return idm.ErrNotFound
	}
	a.Password = candidate
	return nil
}
