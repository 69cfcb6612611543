package syncer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/parity"
)

// Feed is the source of transactions and balances.
type Feed interface {
	FetchSince(ctx context.Context, accountID string, watermark time.Time) ([]domain.SourceTransaction, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Destination is a ledger the engine writes to.
type Destination interface {
	parity.Account

	Name() domain.Destination
	// Prepare runs once at the start of a pass.
	Prepare(ctx context.Context, force bool) error
	ImportTransactions(ctx context.Context, m *domain.AccountMapping, txs []domain.SourceTransaction) (int, error)
	// Finalize runs once after every account was dispatched without error.
	Finalize(ctx context.Context, uploaded int) error
}

// MappingStore loads and persists the account mapping.
//
//go:generate mockgen -destination=mocks/mock_interface.go -package=mock_syncer -source=interface.go MappingStore,RunRecorder
type MappingStore interface {
	Load(ctx context.Context) (*domain.MappingSet, error)
	Save(ctx context.Context, set *domain.MappingSet) error
}

// RunRecorder keeps a history of passes.
type RunRecorder interface {
	StartSyncRun(ctx context.Context, runID string, dest domain.Destination, trigger string) error
	MarkSyncRunSucceeded(ctx context.Context, runID string, uploaded, accounts int) error
	MarkSyncRunFailed(ctx context.Context, runID string, kind, message string) error
}
