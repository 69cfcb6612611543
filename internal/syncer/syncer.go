// Package syncer runs sync passes: it dispatches every mapped account to a
// destination, finalizes the destination and persists watermarks.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/parity"
)

// Outcome is how an account left a pass.
type Outcome int

const (
	Synced Outcome = iota
	Skipped
)

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	SkipDoNotSync    SkipReason = "do-not-sync"
	SkipMissingIDs   SkipReason = "missing destination identifiers"
	SkipUnknownClass SkipReason = "unknown account class"
)

// AccountResult is the outcome of dispatching one account.
type AccountResult struct {
	SourceID string
	Name     string
	Class    domain.AccountClass
	Outcome  Outcome
	Reason   SkipReason
	Uploaded int
}

// ConfigurationGap reports whether the skip came from incomplete configuration.
func (r AccountResult) ConfigurationGap() bool {
	return r.Outcome == Skipped && r.Reason != SkipDoNotSync
}

// Result summarises a completed pass for one destination.
type Result struct {
	RunID       string
	Destination domain.Destination
	Uploaded    int
	Successful  []string
	Accounts    []AccountResult
}

// Options configures an Engine.
type Options struct {
	ForceRefresh bool
	// Recorder may be nil.
	Recorder RunRecorder
	Now      func() time.Time
}

// Engine runs passes. It is not safe for concurrent passes; serialize them
// with a run guard.
type Engine struct {
	feed     Feed
	store    MappingStore
	recorder RunRecorder
	parity   *parity.Controller
	force    bool
	now      func() time.Time
	newID    func() string
}

// New creates an engine.
func New(feed Feed, store MappingStore, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		feed:     feed,
		store:    store,
		recorder: opts.Recorder,
		parity:   parity.NewControllerWithClock(now),
		force:    opts.ForceRefresh,
		now:      now,
		newID:    uuid.NewString,
	}
}

// Prioritize returns the mappings with On-Budget accounts first, keeping the
// relative order within each group.
func Prioritize(ms []*domain.AccountMapping) []*domain.AccountMapping {
	out := append([]*domain.AccountMapping(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i].Class) < priority(out[j].Class)
	})
	return out
}

func priority(c domain.AccountClass) int {
	if c == domain.OnBudget {
		return 0
	}
	return 1
}

// Run executes one pass against dest. Watermarks of successful accounts are
// stamped on set and saved only if the whole pass succeeds.
func (e *Engine) Run(ctx context.Context, set *domain.MappingSet, dest Destination, trigger string) (*Result, error) {
	runID := e.newID()
	log := logger.FromContext(ctx).With().
		Str("run_id", runID).
		Str("destination", string(dest.Name())).
		Logger()
	ctx = logger.WithContext(ctx, log)

	e.recordStart(ctx, runID, dest.Name(), trigger)
	log.Info().Str("trigger", trigger).Msg("Starting sync pass")

	res, err := e.run(ctx, set, dest)
	if err != nil {
		err = domain.WithDestination(err, dest.Name())
		log.Error().Err(err).Str("kind", domain.KindName(err)).Msg("Sync pass failed")
		e.recordFailure(ctx, runID, err)
		return nil, err
	}
	res.RunID = runID

	log.Info().
		Int("uploaded", res.Uploaded).
		Int("successful_accounts", len(res.Successful)).
		Msg("Sync pass completed")
	e.recordSuccess(ctx, runID, res)
	return res, nil
}

func (e *Engine) run(ctx context.Context, set *domain.MappingSet, dest Destination) (*Result, error) {
	log := logger.FromContext(ctx)

	if err := dest.Prepare(ctx, e.force); err != nil {
		return nil, fmt.Errorf("Run: preparing destination: %w", err)
	}

	res := &Result{Destination: dest.Name()}
	for _, m := range Prioritize(set.Ordered()) {
		ar, err := e.dispatch(ctx, dest, m)
		if err != nil {
			return nil, fmt.Errorf("Run: account %s: %w", m.SourceID, err)
		}
		res.Accounts = append(res.Accounts, ar)
		if ar.Outcome == Synced {
			res.Uploaded += ar.Uploaded
			res.Successful = append(res.Successful, m.SourceID)
		}
	}

	if err := dest.Finalize(ctx, res.Uploaded); err != nil {
		return nil, fmt.Errorf("Run: finalizing: %w", err)
	}

	if len(res.Successful) > 0 {
		stamped := set.StampWatermarks(dest.Name(), res.Successful, e.now())
		if err := e.store.Save(ctx, set); err != nil {
			return nil, fmt.Errorf("Run: saving watermarks: %w", err)
		}
		log.Info().Int("accounts", stamped).Msg("Updated sync watermarks")
	}
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, dest Destination, m *domain.AccountMapping) (AccountResult, error) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"account_id": m.SourceID,
		"account":    m.SourceName,
	})
	ar := AccountResult{SourceID: m.SourceID, Name: m.SourceName, Class: m.Class}

	link := m.Link(dest.Name())
	if link.DoNotSync {
		log.Debug().Msg("Skipping account configured not to sync")
		ar.Outcome, ar.Reason = Skipped, SkipDoNotSync
		return ar, nil
	}
	if !link.Complete() {
		log.Warn().Msg("Skipping account with missing destination identifiers")
		ar.Outcome, ar.Reason = Skipped, SkipMissingIDs
		return ar, nil
	}

	log.Info().
		Str("linked_account", link.AccountName).
		Str("linked_account_id", link.AccountID).
		Str("last_synced", link.WatermarkString()).
		Msg("Processing account")
	ctx = logger.WithContext(ctx, log)

	switch m.Class {
	case domain.OnBudget:
		txs, err := e.feed.FetchSince(ctx, m.SourceID, link.Watermark())
		if err != nil {
			return ar, err
		}
		n, err := dest.ImportTransactions(ctx, m, txs)
		if err != nil {
			return ar, err
		}
		ar.Uploaded = n
	case domain.Tracking:
		bal, err := e.feed.Balance(ctx, m.SourceID)
		if err != nil {
			return ar, err
		}
		m.SourceBalance = &bal
		n, err := e.parity.Reconcile(ctx, dest, m, bal)
		if err != nil {
			return ar, err
		}
		ar.Uploaded = n
	default:
		log.Error().Str("class", string(m.Class)).Msg("Skipping account with unknown class")
		ar.Outcome, ar.Reason = Skipped, SkipUnknownClass
		return ar, nil
	}

	ar.Outcome = Synced
	return ar, nil
}

// Pass is the outcome of SyncAll.
type Pass struct {
	Results map[domain.Destination]*Result
	// PreviousSync is the latest watermark per destination before the pass.
	PreviousSync map[domain.Destination]string
	Set          *domain.MappingSet
}

// Uploaded returns the upload count for dest, zero when it did not run.
func (p *Pass) Uploaded(dest domain.Destination) int {
	if r, ok := p.Results[dest]; ok {
		return r.Uploaded
	}
	return 0
}

// SyncAll loads the mapping once and runs a pass per destination in order.
// The first failing destination aborts the rest.
func (e *Engine) SyncAll(ctx context.Context, dests []Destination, trigger string) (*Pass, error) {
	set, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncAll: loading mapping: %w", err)
	}

	pass := &Pass{
		Results:      make(map[domain.Destination]*Result, len(dests)),
		PreviousSync: make(map[domain.Destination]string, len(dests)),
		Set:          set,
	}
	for _, d := range dests {
		if last, ok := set.LastSync(d.Name()); ok {
			pass.PreviousSync[d.Name()] = last
		}
	}

	for _, d := range dests {
		res, err := e.Run(ctx, set, d, trigger)
		if err != nil {
			return nil, fmt.Errorf("SyncAll: %w", err)
		}
		pass.Results[d.Name()] = res
	}
	return pass, nil
}

func (e *Engine) recordStart(ctx context.Context, runID string, dest domain.Destination, trigger string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.StartSyncRun(ctx, runID, dest, trigger); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record sync run start")
	}
}

func (e *Engine) recordSuccess(ctx context.Context, runID string, res *Result) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.MarkSyncRunSucceeded(ctx, runID, res.Uploaded, len(res.Successful)); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record sync run success")
	}
}

func (e *Engine) recordFailure(ctx context.Context, runID string, cause error) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.MarkSyncRunFailed(ctx, runID, domain.KindName(cause), cause.Error()); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record sync run failure")
	}
}
