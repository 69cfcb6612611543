package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/report"
	"github.com/dvloznov/budget-sync/internal/runguard"
	"github.com/dvloznov/budget-sync/internal/syncer"
)

type passEngine interface {
	SyncAll(ctx context.Context, dests []syncer.Destination, trigger string) (*syncer.Pass, error)
}

type reportPublisher interface {
	Publish(ctx context.Context, r *report.Report) error
}

// runner executes guarded passes and keeps the latest report.
type runner struct {
	engine    passEngine
	guard     runguard.Guard
	latest    *report.Latest
	publisher reportPublisher
	now       func() time.Time
}

// Run executes one pass over dests and returns its report.
func (r *runner) Run(ctx context.Context, dests []syncer.Destination, trigger string) (*report.Report, error) {
	v, err := r.guard.Do(ctx, passKey(dests), func(ctx context.Context) (any, error) {
		pass, err := r.engine.SyncAll(ctx, dests, trigger)
		if err != nil {
			return nil, err
		}
		rep := report.FromPass(pass, r.now())
		r.latest.Set(rep)
		r.publish(ctx, rep)
		return rep, nil
	})
	if err != nil {
		return nil, err
	}
	rep, ok := v.(*report.Report)
	if !ok {
		return nil, fmt.Errorf("Run: unexpected pass result %T", v)
	}
	return rep, nil
}

func (r *runner) publish(ctx context.Context, rep *report.Report) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, rep); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to publish sync report")
	}
}

// passKey names a pass by its sorted destination set.
func passKey(dests []syncer.Destination) string {
	names := make([]string, 0, len(dests))
	for _, d := range dests {
		names = append(names, string(d.Name()))
	}
	sort.Strings(names)
	return "sync:" + strings.Join(names, ",")
}

// jobHandler adapts Run to the job queue. A pass already running elsewhere
// is not retried.
func (r *runner) jobHandler(selectDests func(*jobs.SyncJob) []syncer.Destination) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.SyncJob) (int, error) {
		dests := selectDests(job)
		if len(dests) == 0 {
			return 0, jobs.Permanent(errors.New("no enabled destination selected"))
		}
		rep, err := r.Run(ctx, dests, string(job.Trigger))
		if errors.Is(err, runguard.ErrPassInProgress) {
			return 0, jobs.Permanent(err)
		}
		if err != nil {
			return 0, err
		}
		total := 0
		for _, s := range rep.Stats {
			total += s.TransactionsCreated
		}
		return total, nil
	}
}
