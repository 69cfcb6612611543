package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/report"
	"github.com/dvloznov/budget-sync/internal/runguard"
	"github.com/dvloznov/budget-sync/internal/syncer"
)

type fakeEngine struct {
	pass  *syncer.Pass
	err   error
	calls int
	dests []syncer.Destination
}

func (f *fakeEngine) SyncAll(ctx context.Context, dests []syncer.Destination, trigger string) (*syncer.Pass, error) {
	f.calls++
	f.dests = dests
	return f.pass, f.err
}

type fakePublisher struct {
	reports []*report.Report
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, r *report.Report) error {
	f.reports = append(f.reports, r)
	return f.err
}

type busyGuard struct{}

func (busyGuard) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	return nil, runguard.ErrPassInProgress
}

// namedDest is a Destination stub; only Name is used here.
type namedDest struct {
	syncer.Destination
	name domain.Destination
}

func (d namedDest) Name() domain.Destination { return d.name }

func testPass() *syncer.Pass {
	set := domain.NewMappingSet()
	set.Add(&domain.AccountMapping{
		SourceID: "acc_1",
		Class:    domain.OnBudget,
		YNAB:     domain.DestinationLink{BudgetID: "b", AccountID: "y"},
		Actual:   domain.DestinationLink{BudgetID: "f", AccountID: "a"},
	})
	return &syncer.Pass{
		Results: map[domain.Destination]*syncer.Result{
			domain.DestinationActual: {Uploaded: 2},
			domain.DestinationYNAB:   {Uploaded: 3},
		},
		PreviousSync: map[domain.Destination]string{},
		Set:          set,
	}
}

func TestRunner_Run(t *testing.T) {
	engine := &fakeEngine{pass: testPass()}
	pub := &fakePublisher{err: errors.New("notion down")}
	r := &runner{
		engine:    engine,
		guard:     runguard.NewLocalGuard(),
		latest:    &report.Latest{},
		publisher: pub,
		now:       func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	}

	rep, err := r.Run(context.Background(), nil, "manual")
	require.NoError(t, err, "a publish failure must not fail the pass")
	assert.Equal(t, 2, rep.Stats[domain.DestinationActual].TransactionsCreated)
	assert.Same(t, rep, r.latest.Get())
	assert.Len(t, pub.reports, 1)
}

func TestPassKey(t *testing.T) {
	actualDest := namedDest{name: domain.DestinationActual}
	ynabDest := namedDest{name: domain.DestinationYNAB}

	assert.Equal(t, "sync:actual,ynab", passKey([]syncer.Destination{ynabDest, actualDest}))
	assert.Equal(t, passKey([]syncer.Destination{actualDest, ynabDest}), passKey([]syncer.Destination{ynabDest, actualDest}))
	assert.NotEqual(t, passKey([]syncer.Destination{actualDest}), passKey([]syncer.Destination{actualDest, ynabDest}))
	assert.Equal(t, "sync:", passKey(nil))
}

func TestRunner_JobHandler(t *testing.T) {
	dests := []syncer.Destination{namedDest{name: domain.DestinationActual}, namedDest{name: domain.DestinationYNAB}}
	pick := func(job *jobs.SyncJob) []syncer.Destination { return selectDestinations(dests, job.Destinations) }

	t.Run("sums created records", func(t *testing.T) {
		engine := &fakeEngine{pass: testPass()}
		r := &runner{engine: engine, guard: runguard.NewLocalGuard(), latest: &report.Latest{}, now: time.Now}

		n, err := r.jobHandler(pick)(context.Background(), &jobs.SyncJob{Destinations: []domain.Destination{domain.DestinationYNAB}})
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		require.Len(t, engine.dests, 1)
		assert.Equal(t, domain.DestinationYNAB, engine.dests[0].Name())
	})

	t.Run("pass in progress is permanent", func(t *testing.T) {
		r := &runner{engine: &fakeEngine{}, guard: busyGuard{}, latest: &report.Latest{}, now: time.Now}

		_, err := r.jobHandler(pick)(context.Background(), &jobs.SyncJob{})
		assert.True(t, jobs.IsPermanent(err))
		assert.ErrorIs(t, err, runguard.ErrPassInProgress)
	})

	t.Run("engine failure is retried", func(t *testing.T) {
		feedErr := domain.NewSyncError(domain.ErrFeedUnavailable, domain.DestinationYNAB, "acc_1", errors.New("timeout"))
		r := &runner{engine: &fakeEngine{err: feedErr}, guard: runguard.NewLocalGuard(), latest: &report.Latest{}, now: time.Now}

		_, err := r.jobHandler(pick)(context.Background(), &jobs.SyncJob{})
		assert.False(t, jobs.IsPermanent(err))
		assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	})

	t.Run("nothing selected", func(t *testing.T) {
		r := &runner{engine: &fakeEngine{}, guard: runguard.NewLocalGuard(), latest: &report.Latest{}, now: time.Now}
		none := func(*jobs.SyncJob) []syncer.Destination { return nil }

		_, err := r.jobHandler(none)(context.Background(), &jobs.SyncJob{})
		assert.True(t, jobs.IsPermanent(err))
	})
}

func TestParseDestinations(t *testing.T) {
	got, err := parseDestinations("actual, ynab")
	require.NoError(t, err)
	assert.Equal(t, []domain.Destination{domain.DestinationActual, domain.DestinationYNAB}, got)

	got, err = parseDestinations("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDestinations("mint")
	assert.Error(t, err)
}

func TestSelectDestinations(t *testing.T) {
	all := []syncer.Destination{namedDest{name: domain.DestinationActual}, namedDest{name: domain.DestinationYNAB}}

	assert.Len(t, selectDestinations(all, nil), 2)

	got := selectDestinations(all, []domain.Destination{domain.DestinationYNAB, domain.DestinationActual})
	require.Len(t, got, 2)
	assert.Equal(t, domain.DestinationActual, got[0].Name(), "run order is fixed")
}

func TestPrintMapping(t *testing.T) {
	bal := decimal.RequireFromString("1234.5")
	set := domain.NewMappingSet()
	set.Add(&domain.AccountMapping{
		SourceID:      "acc_1",
		SourceName:    "Savings",
		Class:         domain.Tracking,
		YNAB:          domain.DestinationLink{BudgetID: "b", AccountID: "y", AccountName: "YNAB Savings"},
		Actual:        domain.DestinationLink{BudgetID: "f"},
		SourceBalance: &bal,
	})
	set.Add(&domain.AccountMapping{
		SourceID: "acc_2",
		Class:    domain.OnBudget,
		YNAB:     domain.DestinationLink{DoNotSync: true},
	})

	var all bytes.Buffer
	printMapping(&all, set, false)
	assert.Contains(t, all.String(), "YNAB Savings")
	assert.Contains(t, all.String(), "$1,234.50")
	assert.Contains(t, all.String(), "do-not-sync")

	var gaps bytes.Buffer
	printMapping(&gaps, set, true)
	lines := strings.Split(strings.TrimSpace(gaps.String()), "\n")
	// header, acc_1/actual incomplete, acc_2/actual unmapped
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "incomplete")
	assert.Contains(t, lines[2], "unmapped")
}
