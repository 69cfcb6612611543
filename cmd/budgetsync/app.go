package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-sync/internal/actual"
	"github.com/dvloznov/budget-sync/internal/actual/bridge"
	"github.com/dvloznov/budget-sync/internal/actual/memory"
	"github.com/dvloznov/budget-sync/internal/akahu"
	"github.com/dvloznov/budget-sync/internal/config"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/gcs"
	"github.com/dvloznov/budget-sync/internal/infra/bigquery"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/mapping"
	"github.com/dvloznov/budget-sync/internal/report"
	"github.com/dvloznov/budget-sync/internal/runguard"
	"github.com/dvloznov/budget-sync/internal/syncer"
	"github.com/dvloznov/budget-sync/internal/ynab"
)

// app holds everything a command needs. Optional parts are nil when their
// configuration is absent.
type app struct {
	cfg config.Config
	log zerolog.Logger

	store    mapping.Store
	runs     *bigquery.SyncRunRepository
	engine   *syncer.Engine
	dests    []syncer.Destination
	runner   *runner
	closers  []func() error
}

type appOptions struct {
	// dryRun swaps the Actual bridge for an in-memory ledger, leaves YNAB out
	// and never writes the mapping.
	dryRun bool
	// needFeed is false for commands that only read the mapping or history.
	needFeed bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if opts.needFeed {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	a := &app{
		cfg: cfg,
		log: logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON}),
	}

	if err := a.openStore(ctx, opts.dryRun); err != nil {
		a.close()
		return nil, err
	}

	if cfg.BigQuery.ProjectID != "" {
		repo, err := bigquery.NewSyncRunRepository(ctx, bigquery.Table{ProjectID: cfg.BigQuery.ProjectID, DatasetID: cfg.BigQuery.Dataset})
		if err != nil {
			a.close()
			return nil, err
		}
		a.runs = repo
		a.closers = append(a.closers, repo.Close)
	}

	if !opts.needFeed {
		return a, nil
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	debug := logger.DebugSelector(cfg.Sync.Debug)
	if debug.Enabled() {
		a.log.Info().Str("debug", string(debug)).Msg("Transaction tracing enabled")
	}

	if cfg.Actual.Enabled {
		var ledger actual.Ledger
		if opts.dryRun {
			ledger = memory.New()
		} else {
			ledger = bridge.NewClient(cfg.Actual.BridgeURL, cfg.Actual.APIKey, httpClient)
		}
		a.dests = append(a.dests, actual.NewReconciler(ledger, debug))
	}
	if cfg.YNAB.Enabled && !opts.dryRun {
		client := ynab.NewClient(cfg.YNAB.Endpoint, cfg.YNABHeaders(), httpClient)
		a.dests = append(a.dests, ynab.NewImporter(client, debug))
	}
	if len(a.dests) == 0 {
		a.close()
		return nil, errors.New("no destination is enabled")
	}

	engineOpts := syncer.Options{ForceRefresh: cfg.Sync.ForceRefresh}
	if a.runs != nil && !opts.dryRun {
		engineOpts.Recorder = a.runs
	}
	feed := akahu.NewClient(cfg.Akahu.Endpoint, cfg.AkahuHeaders(), httpClient)
	a.engine = syncer.New(feed, a.store, engineOpts)

	a.runner = &runner{
		engine: a.engine,
		guard:  a.guard(),
		latest: &report.Latest{},
		now:    time.Now,
	}
	if cfg.Notion.Token != "" && cfg.Notion.ReportDatabaseID != "" && !opts.dryRun {
		a.runner.publisher = report.NewNotionPublisher(report.NewNotionClient(cfg.Notion.Token), cfg.Notion.ReportDatabaseID)
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, dryRun bool) error {
	var store mapping.Store
	if a.cfg.Mapping.GCSURI != "" {
		objects, err := gcs.NewStorageService(ctx)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, objects.Close)
		gs, err := mapping.NewGCSStore(objects, a.cfg.Mapping.GCSURI)
		if err != nil {
			return err
		}
		store = gs
	} else {
		store = mapping.NewFileStore(a.cfg.Mapping.File)
	}
	if dryRun {
		store = readOnlyStore{store}
	}
	a.store = store
	return nil
}

// guard is Redis-backed when REDIS_ADDR is set, so several instances never
// run a pass at the same time.
func (a *app) guard() runguard.Guard {
	if a.cfg.Redis.Addr == "" {
		return runguard.NewLocalGuard()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
	})
	a.closers = append(a.closers, client.Close)
	return runguard.NewRedisGuard(client, runguard.DefaultExpiry)
}

// destinations returns the enabled destinations named in want, in run order.
// An empty want selects all of them.
func (a *app) destinations(want []domain.Destination) []syncer.Destination {
	return selectDestinations(a.dests, want)
}

func (a *app) destinationNames() []domain.Destination {
	names := make([]domain.Destination, 0, len(a.dests))
	for _, d := range a.dests {
		names = append(names, d.Name())
	}
	return names
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}

func selectDestinations(all []syncer.Destination, want []domain.Destination) []syncer.Destination {
	if len(want) == 0 {
		return all
	}
	keep := make(map[domain.Destination]bool, len(want))
	for _, d := range want {
		keep[d] = true
	}
	var out []syncer.Destination
	for _, d := range all {
		if keep[d.Name()] {
			out = append(out, d)
		}
	}
	return out
}

// readOnlyStore discards saves.
type readOnlyStore struct {
	mapping.Store
}

func (readOnlyStore) Save(ctx context.Context, set *domain.MappingSet) error {
	log := logger.FromContext(ctx)
	log.Info().Msg("Dry run, mapping not saved")
	return nil
}
