// Package bridge is an actual.Ledger backed by an HTTP sidecar that holds
// the Actual Budget file session.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/dvloznov/budget-sync/internal/actual"
)

// APIError is a non-2xx response from the bridge.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("actual bridge: status %d: %s", e.Status, e.Body)
}

// Client talks to the bridge. Session identifiers are cached after each
// download or reset.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.RWMutex
	session actual.SessionInfo
}

// NewClient creates a client. A nil httpClient means http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) Categories(ctx context.Context) ([]actual.Category, error) {
	var out []actual.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	return out, nil
}

func (c *Client) Payees(ctx context.Context) ([]actual.Payee, error) {
	var out []actual.Payee
	if err := c.do(ctx, http.MethodGet, "/payees", nil, &out); err != nil {
		return nil, fmt.Errorf("Payees: %w", err)
	}
	return out, nil
}

// Rule is a rule as listed by the bridge. Only its presence matters here;
// rules are evaluated remotely.
type Rule struct {
	ID    string `json:"id"`
	Stage string `json:"stage,omitempty"`
}

// Ruleset returns nil when the budget has no rules.
func (c *Client) Ruleset(ctx context.Context) (actual.Ruleset, error) {
	var rules []Rule
	if err := c.do(ctx, http.MethodGet, "/rules", nil, &rules); err != nil {
		return nil, fmt.Errorf("Ruleset: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &remoteRuleset{client: c}, nil
}

type remoteRuleset struct {
	client *Client
}

// Run sends tx to the bridge and copies the rule-applied record back into it.
func (r *remoteRuleset) Run(ctx context.Context, tx *actual.Transaction) error {
	var out actual.Transaction
	if err := r.client.do(ctx, http.MethodPost, "/rules/run", tx, &out); err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	*tx = out
	return nil
}

func (c *Client) MatchOrCreate(ctx context.Context, req actual.MatchRequest) (actual.MatchResult, error) {
	if req.AlreadyMatched == nil {
		req.AlreadyMatched = []string{}
	}
	var out actual.MatchResult
	if err := c.do(ctx, http.MethodPost, "/transactions/match-or-create", req, &out); err != nil {
		return actual.MatchResult{}, fmt.Errorf("MatchOrCreate: %w", err)
	}
	if out.Transaction == nil {
		return actual.MatchResult{}, fmt.Errorf("MatchOrCreate: response has no transaction")
	}
	return out, nil
}

func (c *Client) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/balance", nil, &out); err != nil {
		return 0, fmt.Errorf("AccountBalance: %w", err)
	}
	return out.Balance, nil
}

func (c *Client) Commit(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/commit", nil, nil); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

// Session returns the identifiers cached by the last download or reset.
func (c *Client) Session() actual.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) SyncToServer(ctx context.Context, req actual.SyncRequest) (actual.SyncChanges, error) {
	var out actual.SyncChanges
	if err := c.do(ctx, http.MethodPost, "/sync", req, &out); err != nil {
		return actual.SyncChanges{}, fmt.Errorf("SyncToServer: %w", err)
	}
	return out, nil
}

func (c *Client) DownloadBudget(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/download", nil, nil); err != nil {
		return fmt.Errorf("DownloadBudget: %w", err)
	}
	return c.refreshSession(ctx)
}

func (c *Client) ResetSession(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/session/reset", nil, nil); err != nil {
		return fmt.Errorf("ResetSession: %w", err)
	}
	return c.refreshSession(ctx)
}

func (c *Client) refreshSession(ctx context.Context) error {
	var s actual.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/session", nil, &s); err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

var _ actual.Ledger = (*Client)(nil)
