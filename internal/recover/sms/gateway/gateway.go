// Package gateway implements the SMS transport against the university SMS
// gateway: a form-encoded HTTP POST answered with a ¤-delimited status line.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/varden/recover/internal/recover/sms"
)

// statusAccepted is the gateway's "queued for delivery" status. Anything
// else on the first response line means the message is not going anywhere.
const statusAccepted = "SENDES"

// fieldSeparator delimits the fields of the gateway's response line:
//
//	<msg_id>¤<status>¤<phone_to>¤<timestamp>¤¤¤<message>
const fieldSeparator = "¤"

const defaultTimeout = 10 * time.Second

// Sender posts messages to the gateway.
type Sender struct {
	url      string
	system   string
	username string
	password string
	http     *http.Client
}

var _ sms.Sender = (*Sender)(nil)

func NewSender(gatewayURL, system, username, password string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout

	return &Sender{
		url:      gatewayURL,
		system:   system,
		username: username,
		password: password,
		http:     httpClient,
	}
}

func (s *Sender) Send(ctx context.Context, e164, message string) error {
	form := url.Values{
		"b": []string{s.username},
		"p": []string{s.password},
		"s": []string{s.system},
		"t": []string{e164},
		"m": []string{message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("gateway: returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return checkResponse(string(body))
}

// checkResponse validates the gateway's first response line. The remaining
// lines echo the message and carry no status.
func checkResponse(body string) error {
	line, _, _ := strings.Cut(body, "\n")

	fields := strings.SplitN(line, fieldSeparator, 5)
	if len(fields) < 5 {
		return fmt.Errorf("gateway: bad response line %q", line)
	}

	if status := fields[1]; status != statusAccepted {
		return fmt.Errorf("gateway: message not accepted, status %q", status)
	}
	return nil
}
