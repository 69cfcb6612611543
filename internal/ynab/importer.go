package ynab

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/parity"
	"github.com/dvloznov/budget-sync/internal/transcode"
)

// API is the part of Client the importer needs.
type API interface {
	CreateTransactions(ctx context.Context, budgetID string, txs []transcode.YNABTransaction) (*SaveResponse, error)
	CreateTransaction(ctx context.Context, budgetID string, tx transcode.YNABTransaction) (*SaveResponse, error)
	AccountBalance(ctx context.Context, budgetID, accountID string) (int64, error)
}

// Importer is the YNAB destination. YNAB deduplicates on import_id, so a
// re-sent batch is always safe.
type Importer struct {
	api   API
	debug logger.DebugSelector
}

// NewImporter creates an importer over api.
func NewImporter(api API, debug logger.DebugSelector) *Importer {
	return &Importer{api: api, debug: debug}
}

func (i *Importer) Name() domain.Destination {
	return domain.DestinationYNAB
}

// Prepare is a no-op: YNAB has no local session.
func (i *Importer) Prepare(ctx context.Context, force bool) error {
	return nil
}

// ImportTransactions sends every transaction of m in one batch and returns
// how many the API created.
func (i *Importer) ImportTransactions(ctx context.Context, m *domain.AccountMapping, txs []domain.SourceTransaction) (int, error) {
	log := logger.FromContext(ctx).With().
		Str("destination", string(domain.DestinationYNAB)).
		Str("account", m.SourceName).
		Logger()

	if len(txs) == 0 {
		log.Info().Msg("No transactions to load into YNAB")
		return 0, nil
	}

	batch := make([]transcode.YNABTransaction, 0, len(txs))
	byImportID := make(map[string]transcode.YNABTransaction, len(txs))
	for _, tx := range txs {
		row, err := transcode.ForYNAB(tx, m.YNAB.AccountID)
		if err != nil {
			return 0, err
		}
		if i.debug.Traces(tx.ID) {
			log.Info().
				Str("transaction_id", tx.ID).
				Str("payee", row.PayeeName).
				Int64("amount_milliunits", row.Amount).
				Str("date", row.Date).
				Msg("Processing transaction")
		}
		batch = append(batch, row)
		byImportID[row.ImportID] = row
	}

	resp, err := i.api.CreateTransactions(ctx, m.YNAB.BudgetID, batch)
	if err != nil {
		return 0, domain.NewSyncError(domain.ErrDestinationRejected, domain.DestinationYNAB, m.SourceID,
			fmt.Errorf("ImportTransactions: %w", err))
	}

	for _, id := range resp.DuplicateImportIDs {
		if i.debug.Traces(id) {
			row := byImportID[id]
			log.Info().
				Str("transaction_id", id).
				Str("payee", row.PayeeName).
				Int64("amount_milliunits", row.Amount).
				Msg("Skipped duplicate")
		}
	}
	for _, saved := range resp.Transactions {
		if i.debug.Traces(saved.ImportID) {
			log.Info().
				Str("transaction_id", saved.ImportID).
				Str("payee", saved.PayeeName).
				Int64("amount_milliunits", saved.Amount).
				Msg("Imported")
		}
	}

	created := len(resp.Transactions)
	log.Info().
		Int("created", created).
		Int("duplicates", len(resp.DuplicateImportIDs)).
		Msg("Loaded transactions to YNAB")
	return created, nil
}

// Unit is milliunits.
func (i *Importer) Unit() parity.Unit {
	return parity.Milliunits
}

// DestinationBalance returns the linked account balance in milliunits.
func (i *Importer) DestinationBalance(ctx context.Context, m *domain.AccountMapping) (int64, error) {
	bal, err := i.api.AccountBalance(ctx, m.YNAB.BudgetID, m.YNAB.AccountID)
	if err != nil {
		return 0, domain.NewSyncError(domain.ErrDestinationRejected, domain.DestinationYNAB, m.SourceID,
			fmt.Errorf("DestinationBalance: %w", err))
	}
	return bal, nil
}

// PostAdjustment writes adj as a single cleared and approved transaction.
func (i *Importer) PostAdjustment(ctx context.Context, m *domain.AccountMapping, adj parity.Adjustment) error {
	tx := transcode.YNABTransaction{
		AccountID: m.YNAB.AccountID,
		Date:      adj.Date.String(),
		Amount:    adj.Amount,
		PayeeName: adj.Payee,
		Memo:      adj.Memo,
		Cleared:   "cleared",
		FlagColor: "red",
		Approved:  true,
	}
	if _, err := i.api.CreateTransaction(ctx, m.YNAB.BudgetID, tx); err != nil {
		return domain.NewSyncError(domain.ErrDestinationRejected, domain.DestinationYNAB, m.SourceID,
			fmt.Errorf("PostAdjustment: %w", err))
	}
	return nil
}

// Finalize is a no-op: every YNAB write is already durable.
func (i *Importer) Finalize(ctx context.Context, uploaded int) error {
	return nil
}
