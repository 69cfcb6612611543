// Package memory is an in-process actual.Ledger used for dry runs and tests.
// Records returned by MatchOrCreate alias the ledger's own storage, so rules
// that mutate them mutate the stored record.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/actual"
)

// Rule mutates a transaction when its predicate holds.
type Rule struct {
	Name string
	When func(tx *actual.Transaction) bool
	Then func(tx *actual.Transaction)
}

// Ledger keeps records in memory. Created records are staged until Commit.
type Ledger struct {
	mu sync.Mutex

	records    map[string]*actual.Transaction
	order      []string
	staged     map[string]bool
	payees     map[string]string // id -> name
	categories []actual.Category
	rules      []Rule
	session    actual.SessionInfo

	// FailCommit, when set, is returned by every Commit.
	FailCommit error

	Commits   int
	Syncs     []actual.SyncRequest
	Downloads int
	Resets    int
	unsynced  int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		records: make(map[string]*actual.Transaction),
		staged:  make(map[string]bool),
		payees:  make(map[string]string),
		session: actual.SessionInfo{
			FileID:   "memory-file",
			GroupID:  "memory-group",
			ClientID: uuid.NewString(),
		},
	}
}

// AddCategory registers a category and returns its id.
func (l *Ledger) AddCategory(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.NewString()
	l.categories = append(l.categories, actual.Category{ID: id, Name: name})
	return id
}

// AddPayee registers a payee and returns its id.
func (l *Ledger) AddPayee(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payeeID(name)
}

// AddRule appends a rule to the ruleset.
func (l *Ledger) AddRule(r Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append(l.rules, r)
}

// Seed stores a committed record, assigning an id when it has none.
func (l *Ledger) Seed(tx actual.Transaction) *actual.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	rec := tx
	l.insert(&rec)
	return &rec
}

// Transactions returns copies of the live records of accountID in insertion order.
func (l *Ledger) Transactions(accountID string) []actual.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []actual.Transaction
	for _, id := range l.order {
		rec, ok := l.records[id]
		if !ok || rec.Tombstone || rec.AccountID != accountID {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Staged returns the number of uncommitted records.
func (l *Ledger) Staged() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.staged)
}

// PayeeName returns the name of payee id.
func (l *Ledger) PayeeName(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payees[id]
}

func (l *Ledger) Categories(ctx context.Context) ([]actual.Category, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]actual.Category(nil), l.categories...), nil
}

func (l *Ledger) Payees(ctx context.Context) ([]actual.Payee, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]actual.Payee, 0, len(l.payees))
	for id, name := range l.payees {
		out = append(out, actual.Payee{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Ledger) Ruleset(ctx context.Context) (actual.Ruleset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rules) == 0 {
		return nil, nil
	}
	return ruleset(append([]Rule(nil), l.rules...)), nil
}

type ruleset []Rule

func (rs ruleset) Run(ctx context.Context, tx *actual.Transaction) error {
	for _, r := range rs {
		if r.When == nil || r.When(tx) {
			r.Then(tx)
		}
	}
	return nil
}

// MatchOrCreate looks for a record with the same imported id, then for an
// unclaimed record with the same date, payee and amount that carries no
// imported id of its own. Otherwise it stages a new record.
func (l *Ledger) MatchOrCreate(ctx context.Context, req actual.MatchRequest) (actual.MatchResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.AccountID == "" {
		return actual.MatchResult{}, errors.New("MatchOrCreate: account id is required")
	}

	if req.ImportedID != "" {
		for _, id := range l.order {
			rec := l.records[id]
			if rec != nil && !rec.Tombstone && rec.AccountID == req.AccountID && rec.ImportedID == req.ImportedID {
				return actual.MatchResult{Transaction: rec}, nil
			}
		}
	}

	claimed := make(map[string]bool, len(req.AlreadyMatched))
	for _, id := range req.AlreadyMatched {
		claimed[id] = true
	}
	payeeID, payeeKnown := l.lookupPayee(req.Payee)
	if payeeKnown {
		for _, id := range l.order {
			rec := l.records[id]
			if rec == nil || rec.Tombstone || claimed[id] || rec.AccountID != req.AccountID {
				continue
			}
			if rec.ImportedID != "" && rec.ImportedID != req.ImportedID {
				continue
			}
			if rec.Date == req.Date && rec.PayeeID == payeeID && rec.Amount.Equal(req.Amount) {
				if req.UpdateExisting {
					rec.Notes = req.Notes
					rec.ImportedID = req.ImportedID
					rec.Cleared = req.Cleared
				}
				return actual.MatchResult{Transaction: rec}, nil
			}
		}
	}

	rec := &actual.Transaction{
		ID:            uuid.NewString(),
		AccountID:     req.AccountID,
		Date:          req.Date,
		PayeeID:       l.payeeID(req.Payee),
		ImportedPayee: req.Payee,
		Notes:         req.Notes,
		Amount:        req.Amount,
		ImportedID:    req.ImportedID,
		Cleared:       req.Cleared,
	}
	l.insert(rec)
	l.staged[rec.ID] = true
	return actual.MatchResult{Transaction: rec, Created: true}, nil
}

// AccountBalance sums every live record of accountID, staged ones included.
func (l *Ledger) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, rec := range l.records {
		if rec.Tombstone || rec.AccountID != accountID {
			continue
		}
		total = total.Add(rec.Amount)
	}
	return total.Shift(2).Round(0).IntPart(), nil
}

func (l *Ledger) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Commits++
	if l.FailCommit != nil {
		return l.FailCommit
	}
	l.unsynced += len(l.staged)
	l.staged = make(map[string]bool)
	return nil
}

func (l *Ledger) Session() actual.SessionInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Ledger) SyncToServer(ctx context.Context, req actual.SyncRequest) (actual.SyncChanges, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req.FileID != l.session.FileID {
		return actual.SyncChanges{}, fmt.Errorf("SyncToServer: unknown file %q", req.FileID)
	}
	l.Syncs = append(l.Syncs, req)
	n := l.unsynced
	l.unsynced = 0
	return actual.SyncChanges{Messages: n}, nil
}

// DownloadBudget discards staged records, as reopening the file would.
func (l *Ledger) DownloadBudget(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Downloads++
	l.dropStaged()
	return nil
}

func (l *Ledger) ResetSession(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Resets++
	l.dropStaged()
	return nil
}

func (l *Ledger) dropStaged() {
	for id := range l.staged {
		delete(l.records, id)
	}
	kept := l.order[:0]
	for _, id := range l.order {
		if _, ok := l.records[id]; ok {
			kept = append(kept, id)
		}
	}
	l.order = kept
	l.staged = make(map[string]bool)
}

func (l *Ledger) insert(rec *actual.Transaction) {
	if _, exists := l.records[rec.ID]; !exists {
		l.order = append(l.order, rec.ID)
	}
	l.records[rec.ID] = rec
}

func (l *Ledger) lookupPayee(name string) (string, bool) {
	for id, n := range l.payees {
		if n == name {
			return id, true
		}
	}
	return "", false
}

func (l *Ledger) payeeID(name string) string {
	if id, ok := l.lookupPayee(name); ok {
		return id
	}
	id := uuid.NewString()
	l.payees[id] = name
	return id
}

var _ actual.Ledger = (*Ledger)(nil)

