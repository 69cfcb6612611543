package actual

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/parity"
	"github.com/dvloznov/budget-sync/internal/transcode"
)

// Reconciler delivers transactions and balance adjustments to one budget file.
type Reconciler struct {
	ledger Ledger
	debug  logger.DebugSelector
	now    func() time.Time
	newID  func() string
}

// NewReconciler creates a reconciler over ledger.
func NewReconciler(ledger Ledger, debug logger.DebugSelector) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		debug:  debug,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Name identifies the destination.
func (r *Reconciler) Name() domain.Destination {
	return domain.DestinationActual
}

// Prepare drops the local session and downloads a fresh copy of the budget when force is set.
func (r *Reconciler) Prepare(ctx context.Context, force bool) error {
	if !force {
		return nil
	}
	log := logger.FromContext(ctx)
	log.Info().Msg("Force refresh requested, resetting budget session")
	if err := r.ledger.ResetSession(ctx); err != nil {
		return domain.NewSyncError(domain.ErrLedgerUnavailable, domain.DestinationActual, "",
			fmt.Errorf("Prepare: resetting session: %w", err))
	}
	if err := r.ledger.DownloadBudget(ctx); err != nil {
		return domain.NewSyncError(domain.ErrLedgerUnavailable, domain.DestinationActual, "",
			fmt.Errorf("Prepare: downloading budget: %w", err))
	}
	return nil
}

// ImportTransactions matches or creates every transaction in the linked
// account, runs the ruleset on the created ones, and commits once.
// It returns the number of created records.
func (r *Reconciler) ImportTransactions(ctx context.Context, m *domain.AccountMapping, txs []domain.SourceTransaction) (int, error) {
	log := logger.FromContext(ctx).With().
		Str("destination", string(domain.DestinationActual)).
		Str("account", m.SourceName).
		Logger()
	accountID := m.Actual.AccountID

	if len(txs) == 0 {
		log.Info().Msg("No transactions to load into Actual")
		return 0, nil
	}

	names, err := LoadNames(ctx, r.ledger)
	if err != nil {
		return 0, r.ledgerErr(m, fmt.Errorf("ImportTransactions: %w", err))
	}
	rules, err := r.ledger.Ruleset(ctx)
	if err != nil {
		return 0, r.ledgerErr(m, fmt.Errorf("ImportTransactions: loading ruleset: %w", err))
	}
	if rules == nil {
		log.Info().Msg("No ruleset found in budget, rules will not be applied")
	}

	var pool []string
	created := 0
	for _, tx := range txs {
		row, err := transcode.ForActual(tx)
		if err != nil {
			return 0, err
		}
		trace := r.debug.Traces(tx.ID)
		verbose := trace && !r.debug.All()
		if trace {
			log.Info().
				Str("transaction_id", tx.ID).
				Str("payee", row.Payee).
				Str("amount", row.Amount.String()).
				Msg("Processing transaction")
		}
		if verbose {
			log.Info().
				Str("transaction_id", tx.ID).
				Str("date", row.Date.String()).
				Str("notes", row.Notes).
				Msg("Looking for matching transaction")
		}

		res, err := r.ledger.MatchOrCreate(ctx, MatchRequest{
			Date:           row.Date,
			AccountID:      accountID,
			Payee:          row.Payee,
			Notes:          row.Notes,
			Amount:         row.Amount,
			ImportedID:     row.ImportID,
			Cleared:        row.Cleared,
			AlreadyMatched: pool,
			UpdateExisting: false,
		})
		if err != nil {
			return 0, r.ledgerErr(m, fmt.Errorf("ImportTransactions: reconciling %s: %w", tx.ID, err))
		}
		if res.Transaction == nil {
			return 0, r.ledgerErr(m, fmt.Errorf("ImportTransactions: reconciling %s: ledger returned no record", tx.ID))
		}
		pool = append(pool, res.Transaction.ID)

		if !res.Created {
			switch {
			case verbose:
				log.Info().
					Str("transaction_id", tx.ID).
					Str("match_id", res.Transaction.ID).
					Str("match_payee", names.Payee(res.Transaction.PayeeID)).
					Str("match_amount", res.Transaction.Amount.String()).
					Msg("Found matching transaction, not modified")
			case trace:
				log.Info().Str("transaction_id", tx.ID).Msg("Skipped duplicate transaction")
			default:
				log.Debug().Str("transaction_id", tx.ID).Msg("Transaction already exists, skipping")
			}
			continue
		}
		if verbose {
			log.Info().Str("transaction_id", tx.ID).Str("record_id", res.Transaction.ID).Msg("No matching transaction found, created new")
		}

		if rules != nil {
			before := Capture(res.Transaction)
			if err := rules.Run(ctx, res.Transaction); err != nil {
				return 0, r.ledgerErr(m, fmt.Errorf("ImportTransactions: running rules on %s: %w", tx.ID, err))
			}
			changes := before.Diff(Capture(res.Transaction), names)
			if len(changes) > 0 {
				ev := log.Info().Str("transaction_id", tx.ID)
				for _, c := range changes {
					ev = ev.Str(c.Field.String(), c.Old+" -> "+c.New)
				}
				ev.Msg("Rules modified transaction")
			} else {
				log.Debug().Str("transaction_id", tx.ID).Msg("Rules did not modify transaction")
			}
		}

		created++
		log.Info().
			Str("date", row.Date.String()).
			Str("payee", row.Payee).
			Str("amount", row.Amount.String()).
			Msg("Imported new transaction")
	}

	if err := r.ledger.Commit(ctx); err != nil {
		return 0, domain.NewSyncError(domain.ErrCommitFailed, domain.DestinationActual, m.SourceID,
			fmt.Errorf("ImportTransactions: commit: %w", err))
	}
	log.Info().Int("created", created).Int("processed", len(txs)).Msg("Committed changes to Actual")
	return created, nil
}

// Unit is cents.
func (r *Reconciler) Unit() parity.Unit {
	return parity.Cents
}

// DestinationBalance returns the linked account balance in cents.
func (r *Reconciler) DestinationBalance(ctx context.Context, m *domain.AccountMapping) (int64, error) {
	bal, err := r.ledger.AccountBalance(ctx, m.Actual.AccountID)
	if err != nil {
		return 0, r.ledgerErr(m, fmt.Errorf("DestinationBalance: %w", err))
	}
	return bal, nil
}

// maxAdjustmentAttempts bounds how many pre-existing records an adjustment may
// collide with before PostAdjustment gives up.
const maxAdjustmentAttempts = 16

// PostAdjustment creates the adjustment record and commits it. Records that
// merely look like the adjustment are claimed and skipped so that a new
// record is always written.
func (r *Reconciler) PostAdjustment(ctx context.Context, m *domain.AccountMapping, adj parity.Adjustment) error {
	log := logger.FromContext(ctx)
	req := MatchRequest{
		Date:       adj.Date,
		AccountID:  m.Actual.AccountID,
		Payee:      adj.Payee,
		Notes:      adj.Memo,
		Amount:     adj.Dollars().Round(transcode.ActualScale),
		ImportedID: "adjustment_" + r.newID(),
		Cleared:    true,
	}

	created := false
	for attempt := 0; attempt < maxAdjustmentAttempts; attempt++ {
		res, err := r.ledger.MatchOrCreate(ctx, req)
		if err != nil {
			return r.ledgerErr(m, fmt.Errorf("PostAdjustment: %w", err))
		}
		if res.Transaction == nil {
			return r.ledgerErr(m, fmt.Errorf("PostAdjustment: ledger returned no record"))
		}
		if res.Created {
			created = true
			break
		}
		log.Warn().
			Str("account", m.SourceName).
			Str("match_id", res.Transaction.ID).
			Msg("Adjustment matched an existing record, retrying")
		req.AlreadyMatched = append(req.AlreadyMatched, res.Transaction.ID)
	}
	if !created {
		return r.ledgerErr(m, fmt.Errorf("PostAdjustment: no record created after %d matches", len(req.AlreadyMatched)))
	}

	if err := r.ledger.Commit(ctx); err != nil {
		return domain.NewSyncError(domain.ErrCommitFailed, domain.DestinationActual, m.SourceID,
			fmt.Errorf("PostAdjustment: commit: %w", err))
	}
	return nil
}

// Finalize commits and syncs the budget file with the server when anything
// was uploaded, then reloads the budget.
func (r *Reconciler) Finalize(ctx context.Context, uploaded int) error {
	log := logger.FromContext(ctx)
	if uploaded == 0 {
		log.Info().Msg("No changes uploaded to Actual, skipping server sync")
		return nil
	}

	if err := r.ledger.Commit(ctx); err != nil {
		return domain.NewSyncError(domain.ErrCommitFailed, domain.DestinationActual, "",
			fmt.Errorf("Finalize: commit: %w", err))
	}
	s := r.ledger.Session()
	changes, err := r.ledger.SyncToServer(ctx, SyncRequest{
		FileID:    s.FileID,
		GroupID:   s.GroupID,
		KeyID:     s.KeyID,
		ClientID:  s.ClientID,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return domain.NewSyncError(domain.ErrCommitFailed, domain.DestinationActual, "",
			fmt.Errorf("Finalize: syncing to server: %w", err))
	}
	if err := r.ledger.DownloadBudget(ctx); err != nil {
		return domain.NewSyncError(domain.ErrCommitFailed, domain.DestinationActual, "",
			fmt.Errorf("Finalize: downloading budget: %w", err))
	}
	log.Info().
		Int("uploaded", uploaded).
		Int("messages", changes.Messages).
		Msg("Synced budget file with server")
	return nil
}

func (r *Reconciler) ledgerErr(m *domain.AccountMapping, err error) error {
	return domain.NewSyncError(domain.ErrLedgerUnavailable, domain.DestinationActual, m.SourceID, err)
}
