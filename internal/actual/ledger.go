// Package actual reconciles source transactions into an Actual Budget file.
// The budget file itself is reached only through the Ledger capability.
package actual

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is a record in the budget file.
type Transaction struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Date          civil.Date      `json:"date"`
	PayeeID       string          `json:"payee_id,omitempty"`
	ImportedPayee string          `json:"imported_payee,omitempty"`
	CategoryID    string          `json:"category_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ImportedID    string          `json:"imported_id,omitempty"`
	Cleared       bool            `json:"cleared"`
	Tombstone     bool            `json:"tombstone,omitempty"`
}

// MatchRequest describes a transaction to find or create.
type MatchRequest struct {
	Date       civil.Date      `json:"date"`
	AccountID  string          `json:"account_id"`
	Payee      string          `json:"payee"`
	Notes      string          `json:"notes"`
	Amount     decimal.Decimal `json:"amount"`
	ImportedID string          `json:"imported_id,omitempty"`
	Cleared    bool            `json:"cleared"`

	// AlreadyMatched lists record ids claimed earlier in the same batch. They
	// are never returned as a fuzzy match.
	AlreadyMatched []string `json:"already_matched"`
	// UpdateExisting asks the ledger to overwrite fields of a matched record.
	// The reconciler always sends false.
	UpdateExisting bool `json:"update_existing"`
}

// MatchResult is the outcome of MatchOrCreate.
type MatchResult struct {
	Transaction *Transaction `json:"transaction"`
	Created     bool         `json:"created"`
}

// Category is a budget category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payee is a budget payee.
type Payee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionInfo identifies the open budget file for server sync.
type SessionInfo struct {
	FileID   string `json:"file_id"`
	GroupID  string `json:"group_id"`
	KeyID    string `json:"key_id,omitempty"`
	ClientID string `json:"client_id"`
}

// SyncRequest pushes committed changes to the sync server.
type SyncRequest struct {
	FileID    string    `json:"file_id"`
	GroupID   string    `json:"group_id"`
	KeyID     string    `json:"key_id,omitempty"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncChanges summarises what the sync server sent back.
type SyncChanges struct {
	Messages int `json:"messages"`
}

// Ruleset applies the budget's rules to a transaction in place.
type Ruleset interface {
	Run(ctx context.Context, tx *Transaction) error
}

// Ledger is the budget file session capability.
type Ledger interface {
	Categories(ctx context.Context) ([]Category, error)
	Payees(ctx context.Context) ([]Payee, error)
	// Ruleset returns nil, nil when the budget has no rules.
	Ruleset(ctx context.Context) (Ruleset, error)
	MatchOrCreate(ctx context.Context, req MatchRequest) (MatchResult, error)
	// AccountBalance returns the balance in cents.
	AccountBalance(ctx context.Context, accountID string) (int64, error)
	Commit(ctx context.Context) error
	Session() SessionInfo
	SyncToServer(ctx context.Context, req SyncRequest) (SyncChanges, error)
	DownloadBudget(ctx context.Context) error
	ResetSession(ctx context.Context) error
}
