// Package ynab delivers transactions and balance adjustments to a YNAB budget.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dvloznov/budget-sync/internal/transcode"
)

// APIError is a non-2xx response from the YNAB API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ynab api: status %d: %s", e.Status, e.Body)
}

// Client is a minimal YNAB REST client.
type Client struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient means http.DefaultClient.
func NewClient(endpoint string, headers map[string]string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		headers:    headers,
		httpClient: httpClient,
	}
}

// SavedTransaction is a transaction as echoed back by the API.
type SavedTransaction struct {
	ID        string `json:"id"`
	ImportID  string `json:"import_id"`
	PayeeName string `json:"payee_name"`
	Amount    int64  `json:"amount"`
	Date      string `json:"date"`
}

// SaveResponse is the data section of a transaction save.
type SaveResponse struct {
	TransactionIDs     []string           `json:"transaction_ids"`
	Transactions       []SavedTransaction `json:"transactions"`
	Transaction        *SavedTransaction  `json:"transaction"`
	DuplicateImportIDs []string           `json:"duplicate_import_ids"`
	ServerKnowledge    int64              `json:"server_knowledge"`
}

// CreateTransactions posts the whole batch in one request.
func (c *Client) CreateTransactions(ctx context.Context, budgetID string, txs []transcode.YNABTransaction) (*SaveResponse, error) {
	var out struct {
		Data SaveResponse `json:"data"`
	}
	body := map[string]any{"transactions": txs}
	if err := c.do(ctx, http.MethodPost, "/budgets/"+url.PathEscape(budgetID)+"/transactions", body, &out); err != nil {
		return nil, fmt.Errorf("CreateTransactions: %w", err)
	}
	return &out.Data, nil
}

// CreateTransaction posts a single transaction.
func (c *Client) CreateTransaction(ctx context.Context, budgetID string, tx transcode.YNABTransaction) (*SaveResponse, error) {
	var out struct {
		Data SaveResponse `json:"data"`
	}
	body := map[string]any{"transaction": tx}
	if err := c.do(ctx, http.MethodPost, "/budgets/"+url.PathEscape(budgetID)+"/transactions", body, &out); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return &out.Data, nil
}

// AccountBalance returns the account balance in milliunits.
func (c *Client) AccountBalance(ctx context.Context, budgetID, accountID string) (int64, error) {
	var out struct {
		Data struct {
			Account struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Balance int64  `json:"balance"`
			} `json:"account"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/budgets/%s/accounts/%s", url.PathEscape(budgetID), url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, fmt.Errorf("AccountBalance: %w", err)
	}
	return out.Data.Account.Balance, nil
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
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

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
