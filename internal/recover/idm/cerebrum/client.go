// Package cerebrum implements the idm.Backend contract against the Cerebrum
// REST API.
package cerebrum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
)

// lookupSourceSystems bound the external-id search. Cerebrum indexes ids per
// registry; these are the authoritative ones.
var lookupSourceSystems = []string{"SAP", "FS"}

const defaultTimeout = 10 * time.Second

// Client talks to the Cerebrum REST API. It implements idm.Backend: raw
// reads only, no caching and no eligibility policy.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ idm.Backend = (*Client)(nil)

// NewClient builds a client for the API at baseURL, authenticating with the
// given key. A non-positive timeout falls back to a sane default; directory
// calls must never hang a recovery request indefinitely.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

func (c *Client) FindPerson(ctx context.Context, idType, idValue string) (domain.PersonID, error) {
	q := url.Values{}
	for _, system := range lookupSourceSystems {
		q.Add("source_system", system)
	}
	q.Set("id_type", idType)
	q.Set("external_id", idValue)

	var body struct {
		Results []struct {
			PersonID int64 `json:"person_id"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/search/persons/external-ids", q, &body); err != nil {
		return "", err
	}
	if len(body.Results) == 0 {
		return "", idm.ErrNotFound
	}
	return domain.PersonID(fmt.Sprintf("%d", body.Results[0].PersonID)), nil
}

func (c *Client) GetPerson(ctx context.Context, id domain.PersonID) (domain.Person, error) {
	var body struct {
		CreatedAt *apiTime `json:"created_at"`
	}
	if err := c.get(ctx, "/persons/"+url.PathEscape(string(id)), nil, &body); err != nil {
		return domain.Person{}, err
	}
	return domain.Person{ID: id, CreatedAt: body.CreatedAt.ptr()}, nil
}

func (c *Client) GetPersonAffiliations(ctx context.Context, id domain.PersonID) ([]domain.Affiliation, error) {
	q := url.Values{"include_deleted": []string{"true"}}

	var body struct {
		Affiliations []struct {
			SourceSystem string   `json:"source_system"`
			DeletedDate  *apiTime `json:"deleted_date"`
		} `json:"affiliations"`
	}
	if err := c.get(ctx, "/persons/"+url.PathEscape(string(id))+"/affiliations", q, &body); err != nil {
		return nil, err
	}

	affiliations := make([]domain.Affiliation, 0, len(body.Affiliations))
	for _, a := range body.Affiliations {
		affiliations = append(affiliations, domain.Affiliation{
			SourceSystem: a.SourceSystem,
			DeletedAt:    a.DeletedDate.ptr(),
		})
	}
	return affiliations, nil
}

func (c *Client) GetPersonContacts(ctx context.Context, id domain.PersonID) ([]domain.Contact, error) {
	var body struct {
		Contacts []struct {
			SourceSystem string   `json:"source_system"`
			Type         string   `json:"type"`
			Value        string   `json:"value"`
			LastModified *apiTime `json:"last_modified"`
		} `json:"contacts"`
	}
	if err := c.get(ctx, "/persons/"+url.PathEscape(string(id))+"/contacts", nil, &body); err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(body.Contacts))
	for _, item := range body.Contacts {
		contacts = append(contacts, domain.Contact{
			SourceSystem: item.SourceSystem,
			Type:         item.Type,
			Value:        item.Value,
			LastModified: item.LastModified.ptr(),
		})
	}
	return contacts, nil
}

func (c *Client) GetPersonConsents(ctx context.Context, id domain.PersonID) ([]domain.Consent, error) {
	var body struct {
		Consents []struct {
			Name string `json:"name"`
		} `json:"consents"`
	}
	if err := c.get(ctx, "/persons/"+url.PathEscape(string(id))+"/consents", nil, &body); err != nil {
		return nil, err
	}

	consents := make([]domain.Consent, 0, len(body.Consents))
	for _, item := range body.Consents {
		consents = append(consents, domain.Consent{Name: item.Name})
	}
	return consents, nil
}

func (c *Client) GetPersonAccounts(ctx context.Context, id domain.PersonID) ([]string, error) {
	var body struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	if err := c.get(ctx, "/persons/"+url.PathEscape(string(id))+"/accounts", nil, &body); err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(body.Accounts))
	for _, a := range body.Accounts {
		usernames = append(usernames, a.ID)
	}
	return usernames, nil
}

func (c *Client) GetAccountStatus(ctx context.Context, username string) (domain.AccountStatus, error) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(username), nil, &body); err != nil {
		return domain.AccountStatus{}, err
	}
	return domain.AccountStatus{Username: username, Active: body.Active}, nil
}

func (c *Client) GetQuarantineStatus(ctx context.Context, username string) (domain.QuarantineStatus, error) {
	var body struct {
		Locked      bool `json:"locked"`
		Quarantines []struct {
			Type string `json:"type"`
		} `json:"quarantines"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(username)+"/quarantines", nil, &body); err != nil {
		return domain.QuarantineStatus{}, err
	}

	status := domain.QuarantineStatus{Locked: body.Locked}
	for _, q := range body.Quarantines {
		status.Quarantines = append(status.Quarantines, domain.Quarantine{Type: q.Type})
	}
	return status, nil
}

func (c *Client) GetAccountTraits(ctx context.Context, username string) ([]domain.Trait, error) {
	var body struct {
		Traits []struct {
			Trait  string   `json:"trait"`
			Date   *apiTime `json:"date"`
			Number int      `json:"number"`
		} `json:"traits"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(username)+"/traits", nil, &body); err != nil {
		return nil, err
	}

	traits := make([]domain.Trait, 0, len(body.Traits))
	for _, item := range body.Traits {
		traits = append(traits, domain.Trait{
			Name:   item.Trait,
			Date:   item.Date.ptr(),
			Number: item.Number,
		})
	}
	return traits, nil
}

func (c *Client) GetGroupMemberships(ctx context.Context, username string) ([]string, error) {
	q := url.Values{"indirect_memberships": []string{"true"}}

	var body struct {
		Groups []struct {
			Name string `json:"name"`
		} `json:"groups"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(username)+"/groups", q, &body); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(body.Groups))
	for _, g := range body.Groups {
		names = append(names, g.Name)
	}
	return names, nil
}

func (c *Client) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	var body struct {
		Verified bool `json:"verified"`
	}
	err := c.post(ctx, "/accounts/"+url.PathEscape(username)+"/password/verify",
		map[string]string{"password": password}, &body)
	if err != nil {
		return false, err
	}
	return body.Verified, nil
}

func (c *Client) CheckPasswordPolicy(ctx context.Context, username, candidate string) (bool, error) {
	var body struct {
		Passed bool `json:"passed"`
	}
	err := c.post(ctx, "/accounts/"+url.PathEscape(username)+"/password/check",
		map[string]string{"password": candidate}, &body)
	if err != nil {
		return false, err
	}
	return body.Passed, nil
}

func (c *Client) SetPassword(ctx context.Context, username, candidate string) error {
	var body struct {
		Password bool `json:"password"`
	}
	err := c.post(ctx, "/accounts/"+url.PathEscape(username)+"/password",
		map[string]string{"password": candidate}, &body)
	if err != nil {
		return err
	}
	if !body.Password {
		return fmt.Errorf("cerebrum: password change not confirmed for %q", username)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("cerebrum: ping returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return idm.ErrNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("cerebrum: %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// apiTime tolerates the timestamp formats Cerebrum emits.
type apiTime struct {
	time.Time
}

var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	for _, format := range timeFormats {
		parsed, err := time.Parse(format, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cerebrum: unparseable timestamp %q", raw)
}

func (t *apiTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	return &t.Time
}
