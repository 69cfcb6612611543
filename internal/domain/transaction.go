package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SourceTransaction is a transaction as delivered by the aggregator feed.
// Values are never modified after decoding.
type SourceTransaction struct {
	ID          string          `json:"_id"`
	AccountID   string          `json:"_account,omitempty"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`

	// Merchant is kept raw: the feed does not guarantee its shape.
	Merchant json.RawMessage `json:"merchant,omitempty"`

	Balance decimal.NullDecimal `json:"balance"`
	Type    string              `json:"type,omitempty"`
}

// Merchant is the enrichment object some feed records carry.
type Merchant struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
