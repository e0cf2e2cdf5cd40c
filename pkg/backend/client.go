// Package backend is the thin HTTP wrapper around the Guardian backend: the
// external collaborator that authenticates requests, stores vault
// credentials, and answers questions about page content.
//
// Every call degrades the same way: network failures, non-2xx statuses, and
// malformed bodies all surface as plain errors for the caller to absorb.
// There are no retries here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/guardian/pkg/config"
	"github.com/entrhq/guardian/pkg/logging"
	"github.com/entrhq/guardian/pkg/rules"
	"github.com/entrhq/guardian/pkg/types"
)

const defaultTimeout = 15 * time.Second

// ConfigSource supplies the current connection config. Host and token are
// read per request so config mutations take effect immediately.
type ConfigSource interface {
	Get() config.Connection
}

// Client talks to the backend over HTTP with JSON bodies and bearer-token
// auth derived from the stored config.
type Client struct {
	http   *http.Client
	source ConfigSource
	log    *logging.Logger
}

// New creates a client. The logger may be nil.
func New(source ConfigSource, log *logging.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: defaultTimeout},
		source: source,
		log:    log,
	}
}

// AskQuery is the request body for /browse/ask.
type AskQuery struct {
	URL          string                   `json:"url"`
	PageText     string                   `json:"page_text"`
	Question     string                   `json:"question"`
	Role         types.Role               `json:"role"`
	Conversation []types.ConversationTurn `json:"conversation"`
}

// Status probes the backend's status endpoint. A nil return means reachable
// and authenticated.
func (c *Client) Status(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/status", nil, nil)
}

// Ask sends a question with page context and returns the answer. Sources and
// Media in the result are always non-nil.
func (c *Client) Ask(ctx context.Context, q AskQuery) (*types.AskResponse, error) {
	var res types.AskResponse
	if err := c.do(ctx, http.MethodPost, "/browse/ask", q, &res); err != nil {
		return nil, err
	}
	if res.Sources == nil {
		res.Sources = []types.Source{}
	}
	if res.Media == nil {
		res.Media = []types.Media{}
	}
	return &res, nil
}

// MatchVault returns vault entries whose URL pattern matches the given URL.
func (c *Client) MatchVault(ctx context.Context, pageURL string) ([]types.VaultEntry, error) {
	var entries []types.VaultEntry
	path := "/vault/match?url=" + url.QueryEscape(pageURL)
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CredentialPassword fetches the password for one vault credential. Single
// use; callers must not cache the result.
func (c *Client) CredentialPassword(ctx context.Context, id string) (string, error) {
	var res struct {
		Password string `json:"password"`
	}
	path := fmt.Sprintf("/vault/credential/%s/password", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return "", err
	}
	return res.Password, nil
}

// LogAutofill records an autofill action in the backend audit log.
func (c *Client) LogAutofill(ctx context.Context, pageURL, username string) error {
	body := struct {
		URL       string `json:"url"`
		Username  string `json:"username"`
		Timestamp string `json:"timestamp"`
	}{
		URL:       pageURL,
		Username:  username,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPost, "/vault/autofill-log", body, nil)
}

// DNSRules fetches the server-augmented rule set for a role. Callers merge
// the result with locally compiled rules after normalizing ids.
func (c *Client) DNSRules(ctx context.Context, role types.Role) ([]rules.Rule, error) {
	var out []rules.Rule
	path := "/dns/rules?role=" + url.QueryEscape(string(role))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	conn := c.source.Get()
	if conn.Host == "" {
		return fmt.Errorf("no backend host configured")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := strings.TrimSuffix(conn.Host, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %s for %s", resp.Status, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("malformed backend response for %s: %w", path, err)
		}
	}
	return nil
}
