// Package akahu reads transactions and balances from the Akahu bank-data feed.
package akahu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
)

// LookBack is subtracted from the watermark to catch late-posting transactions.
const LookBack = 7 * 24 * time.Hour

// Client is a thin Akahu REST client. It never retries.
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

// WindowStart returns the start of the fetch window for a watermark.
// A zero watermark starts at the epoch.
func WindowStart(watermark time.Time) time.Time {
	if watermark.IsZero() {
		return domain.Epoch
	}
	return watermark.UTC().Add(-LookBack)
}

type transactionsPage struct {
	Items  []domain.SourceTransaction `json:"items"`
	Cursor *struct {
		Next *string `json:"next"`
	} `json:"cursor"`
}

// FetchSince returns every transaction of accountID from WindowStart(watermark),
// in server order.
func (c *Client) FetchSince(ctx context.Context, accountID string, watermark time.Time) ([]domain.SourceTransaction, error) {
	log := logger.FromContext(ctx)

	params := url.Values{}
	params.Set("start", WindowStart(watermark).Format(time.RFC3339))

	var all []domain.SourceTransaction
	pages := 0
	for {
		var page transactionsPage
		path := fmt.Sprintf("/accounts/%s/transactions", url.PathEscape(accountID))
		if err := c.get(ctx, path, params, &page); err != nil {
			return nil, domain.NewSyncError(domain.ErrFeedUnavailable, "", accountID,
				fmt.Errorf("FetchSince: page %d: %w", pages+1, err))
		}
		pages++
		for i := range page.Items {
			if page.Items[i].AccountID == "" {
				page.Items[i].AccountID = accountID
			}
		}
		all = append(all, page.Items...)

		if len(page.Items) == 0 || page.Cursor == nil || page.Cursor.Next == nil || *page.Cursor.Next == "" {
			break
		}
		params.Set("cursor", *page.Cursor.Next)
	}

	if len(all) > 0 {
		log.Info().
			Str("account_id", accountID).
			Int("transactions", len(all)).
			Int("pages", pages).
			Msg("Fetched transactions from Akahu")
	}
	return all, nil
}

type accountResponse struct {
	Item struct {
		ID      string `json:"_id"`
		Name    string `json:"name"`
		Balance struct {
			Current decimal.Decimal `json:"current"`
		} `json:"balance"`
	} `json:"item"`
}

// Balance returns the current balance of accountID in dollars.
func (c *Client) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var resp accountResponse
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountID), nil, &resp); err != nil {
		return decimal.Decimal{}, domain.NewSyncError(domain.ErrFeedUnavailable, "", accountID,
			fmt.Errorf("Balance: %w", err))
	}
	return resp.Item.Balance.Current, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.endpoint + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}
