package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"

	"github.com/dvloznov/budget-sync/internal/api"
	"github.com/dvloznov/budget-sync/internal/api/handlers"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/infra/bigquery"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/jobs/inmemory"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/mapping"
	"github.com/dvloznov/budget-sync/internal/syncer"
)

func parseDestinations(s string) ([]domain.Destination, error) {
	if s == "" {
		return nil, nil
	}
	var out []domain.Destination
	for _, part := range strings.Split(s, ",") {
		d := domain.Destination(strings.TrimSpace(part))
		switch d {
		case domain.DestinationYNAB, domain.DestinationActual:
			out = append(out, d)
		default:
			return nil, fmt.Errorf("unknown destination %q", part)
		}
	}
	return out, nil
}

type syncCmd struct {
	dryRun bool
	only   string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "run one sync pass and print the report" }
func (*syncCmd) Usage() string {
	return `budgetsync sync [-only ynab,actual] [-dry-run]

  Copies new Akahu transactions into every enabled destination, reconciles
  tracking account balances and advances the sync watermarks.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Reconcile against an in-memory Actual ledger, skip YNAB and leave the mapping untouched.")
	f.StringVar(&c.only, "only", "", "Comma-separated destinations to run (default: all enabled).")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	want, err := parseDestinations(c.only)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx, appOptions{dryRun: c.dryRun, needFeed: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()
	ctx = logger.WithContext(ctx, a.log)

	dests := a.destinations(want)
	if len(dests) == 0 {
		fmt.Fprintln(os.Stderr, "no enabled destination selected")
		return subcommands.ExitUsageError
	}

	rep, err := a.runner.Run(ctx, dests, string(jobs.TriggerManual))
	if err != nil {
		a.log.Error().Err(err).Str("kind", domain.KindName(err)).Msg("Sync failed")
		return subcommands.ExitFailure
	}
	fmt.Println(rep.Summary)
	return subcommands.ExitSuccess
}

type serveCmd struct {
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the HTTP API and run queued sync passes" }
func (*serveCmd) Usage() string {
	return `budgetsync serve [-port 8080]

  Starts the HTTP API and a single worker that runs queued passes in order.
  When SCHEDULE_INTERVAL is set, a pass is also queued on that interval.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "HTTP server port (default: PORT or 8080).")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{needFeed: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()
	log := a.log
	ctx = logger.WithContext(ctx, log)

	port := c.port
	if port == "" {
		port = a.cfg.HTTP.Port
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	handler := a.runner.jobHandler(func(job *jobs.SyncJob) []syncer.Destination {
		return a.destinations(job.Destinations)
	})
	if err := jobQueue.Start(workerCtx, handler); err != nil {
		log.Error().Err(err).Msg("Failed to start job worker")
		return subcommands.ExitFailure
	}

	if interval := a.cfg.HTTP.ScheduleInterval; interval > 0 {
		go schedule(workerCtx, jobQueue, interval)
	}

	deps := api.Deps{
		Publisher:    jobQueue,
		Jobs:         jobStore,
		Latest:       a.runner.latest,
		Destinations: a.destinationNames(),
		APIToken:     a.cfg.HTTP.APIToken,
		Log:          log,
	}
	if a.runs != nil {
		deps.Runs = a.runs
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
	return subcommands.ExitSuccess
}

func schedule(ctx context.Context, publisher jobs.Publisher, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Scheduling sync passes")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
			if err := publisher.PublishSync(ctx, job); err != nil {
				log.Warn().Err(err).Msg("Failed to enqueue scheduled sync")
				continue
			}
			log.Info().Str("job_id", job.JobID).Msg("Scheduled sync enqueued")
		}
	}
}

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recent sync runs from BigQuery" }
func (*runsCmd) Usage() string {
	return `budgetsync runs [-n 20]
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "Number of runs to show.")
}

func (c *runsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()
	if a.runs == nil {
		fmt.Fprintln(os.Stderr, "BIGQUERY_PROJECT is not set")
		return subcommands.ExitFailure
	}

	runs, err := a.runs.ListRecentSyncRuns(logger.WithContext(ctx, a.log), c.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printRuns(os.Stdout, runs)
	return subcommands.ExitSuccess
}

func printRuns(w io.Writer, runs []*bigquery.SyncRunRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDESTINATION\tTRIGGER\tSTATUS\tUPLOADED\tACCOUNTS\tERROR")
	for _, r := range runs {
		uploaded, accounts := "-", "-"
		if r.Uploaded.Valid {
			uploaded = fmt.Sprint(r.Uploaded.Int64)
		}
		if r.AccountsSynced.Valid {
			accounts = fmt.Sprint(r.AccountsSynced.Int64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedTS.Format(time.RFC3339), r.Destination, r.TriggerSource, r.Status,
			uploaded, accounts, r.ErrorKind.StringVal)
	}
	tw.Flush()
}

type migrateCmd struct {
	appliedBy string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the BigQuery sync history tables" }
func (*migrateCmd) Usage() string {
	return `budgetsync migrate [-applied-by name]
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.appliedBy, "applied-by", os.Getenv("USER"), "Recorded in schema_migrations.")
}

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()
	if a.runs == nil {
		fmt.Fprintln(os.Stderr, "BIGQUERY_PROJECT is not set")
		return subcommands.ExitFailure
	}

	table := bigquery.Table{ProjectID: a.cfg.BigQuery.ProjectID, DatasetID: a.cfg.BigQuery.Dataset}
	n, err := bigquery.ApplyMigrations(logger.WithContext(ctx, a.log), a.runs.Client(), table, c.appliedBy)
	if err != nil {
		a.log.Error().Err(err).Int("applied", n).Msg("Migration failed")
		return subcommands.ExitFailure
	}
	fmt.Printf("Applied %d migration(s)\n", n)
	return subcommands.ExitSuccess
}

type mappingCmd struct {
	skipped  bool
	stamp    string
	accounts string
}

func (*mappingCmd) Name() string     { return "mapping" }
func (*mappingCmd) Synopsis() string { return "print the account mapping or stamp its watermarks" }
func (*mappingCmd) Usage() string {
	return `budgetsync mapping [-skipped]
budgetsync mapping -stamp ynab|actual -accounts id1,id2

  Without -stamp, prints every mapped account and its links. -skipped keeps
  only accounts a pass would skip for incomplete configuration.
  With -stamp, sets the watermark of the listed accounts to now.
`
}

func (c *mappingCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.skipped, "skipped", false, "Show only links with missing identifiers.")
	f.StringVar(&c.stamp, "stamp", "", "Destination whose watermarks to update.")
	f.StringVar(&c.accounts, "accounts", "", "Comma-separated source account ids for -stamp.")
}

func (c *mappingCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()
	ctx = logger.WithContext(ctx, a.log)

	if c.stamp != "" {
		return c.executeStamp(ctx, a.store)
	}

	set, err := a.store.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMapping(os.Stdout, set, c.skipped)
	return subcommands.ExitSuccess
}

func (c *mappingCmd) executeStamp(ctx context.Context, store mapping.Store) subcommands.ExitStatus {
	dests, err := parseDestinations(c.stamp)
	if err != nil || len(dests) != 1 {
		fmt.Fprintln(os.Stderr, "-stamp takes exactly one of ynab, actual")
		return subcommands.ExitUsageError
	}
	var ids []string
	for _, id := range strings.Split(c.accounts, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "-accounts is required with -stamp")
		return subcommands.ExitUsageError
	}

	n, err := mapping.UpdateTimestamps(ctx, store, dests[0], ids, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Stamped %d account(s)\n", n)
	return subcommands.ExitSuccess
}

func printMapping(w io.Writer, set *domain.MappingSet, onlyGaps bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tNAME\tCLASS\tDESTINATION\tLINKED\tLAST SYNC\tBALANCE")
	for _, m := range set.Ordered() {
		for _, d := range []domain.Destination{domain.DestinationActual, domain.DestinationYNAB} {
			link := m.Link(d)
			if onlyGaps && (link.DoNotSync || link.Complete()) {
				continue
			}
			balance := "-"
			if m.SourceBalance != nil {
				balance = money.New(m.SourceBalance.Shift(2).Round(0).IntPart(), "NZD").Display()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				m.SourceID, m.SourceName, m.Class, d, linkState(*link), link.WatermarkString(), balance)
		}
	}
	tw.Flush()
}

func linkState(l domain.DestinationLink) string {
	switch {
	case l.DoNotSync:
		return "do-not-sync"
	case l.BudgetID == "" && l.AccountID == "":
		return "unmapped"
	case !l.Complete():
		return "incomplete"
	case l.AccountName == "":
		return l.AccountID
	}
	return l.AccountName
}

var _ handlers.RunLister = (*bigquery.SyncRunRepository)(nil)
