package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
)

const maxErrorMessageLen = 2000

// Table identifies the dataset a repository writes to.
type Table struct {
	ProjectID string
	DatasetID string
}

func (t Table) ref(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, name)
}

// SyncRunRepository records sync passes in BigQuery. It holds a shared
// client to avoid creating a new connection for each operation.
type SyncRunRepository struct {
	client *bigquery.Client
	table  Table
}

// NewSyncRunRepository creates a repository with its own client.
func NewSyncRunRepository(ctx context.Context, table Table) (*SyncRunRepository, error) {
	client, err := bigquery.NewClient(ctx, table.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewSyncRunRepository: creating client: %w", err)
	}
	return &SyncRunRepository{client: client, table: table}, nil
}

// Close closes the BigQuery client connection.
func (r *SyncRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client exposes the shared client for migrations.
func (r *SyncRunRepository) Client() *bigquery.Client {
	return r.client
}

func (r *SyncRunRepository) StartSyncRun(ctx context.Context, runID string, dest domain.Destination, trigger string) error {
	return StartSyncRunWithClient(ctx, r.client, r.table, runID, dest, trigger)
}

func (r *SyncRunRepository) MarkSyncRunSucceeded(ctx context.Context, runID string, uploaded, accounts int) error {
	return MarkSyncRunSucceededWithClient(ctx, r.client, r.table, runID, uploaded, accounts)
}

func (r *SyncRunRepository) MarkSyncRunFailed(ctx context.Context, runID string, kind, message string) error {
	return MarkSyncRunFailedWithClient(ctx, r.client, r.table, runID, kind, message)
}

func (r *SyncRunRepository) ListRecentSyncRuns(ctx context.Context, limit int) ([]*SyncRunRow, error) {
	return ListRecentSyncRunsWithClient(ctx, r.client, r.table, limit)
}

// StartSyncRunWithClient inserts a new row with status=RUNNING.
func StartSyncRunWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, dest domain.Destination, trigger string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			sync_run_id,
			destination,
			trigger_source,
			started_ts,
			status
		)
		VALUES (
			@sync_run_id,
			@destination,
			@trigger_source,
			@started_ts,
			@status
		)
	`, table.ref(syncRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "sync_run_id", Value: runID},
		{Name: "destination", Value: string(dest)},
		{Name: "trigger_source", Value: trigger},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: StatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("StartSyncRun: %w", err)
	}
	return nil
}

// MarkSyncRunSucceededWithClient sets status=SUCCESS, finished_ts and the counters.
func MarkSyncRunSucceededWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, uploaded, accounts int) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    uploaded = @uploaded,
		    accounts_synced = @accounts_synced
		WHERE sync_run_id = @sync_run_id
	`, table.ref(syncRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "uploaded", Value: uploaded},
		{Name: "accounts_synced", Value: accounts},
		{Name: "sync_run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkSyncRunSucceeded: %w", err)
	}
	return nil
}

// MarkSyncRunFailedWithClient sets status=FAILED, finished_ts and the error.
func MarkSyncRunFailedWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, kind, message string) error {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_kind = @error_kind,
		    error_message = @error_message
		WHERE sync_run_id = @sync_run_id
	`, table.ref(syncRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_kind", Value: kind},
		{Name: "error_message", Value: truncate(message, maxErrorMessageLen)},
		{Name: "sync_run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("sync_run_id", runID).
			Msg("MarkSyncRunFailed: update failed")
		return fmt.Errorf("MarkSyncRunFailed: %w", err)
	}
	return nil
}

// ListRecentSyncRunsWithClient returns the latest runs, newest first.
func ListRecentSyncRunsWithClient(ctx context.Context, client *bigquery.Client, table Table, limit int) ([]*SyncRunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := client.Query(fmt.Sprintf(`
		SELECT
			sync_run_id,
			destination,
			trigger_source,
			started_ts,
			finished_ts,
			status,
			uploaded,
			accounts_synced,
			error_kind,
			error_message
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, table.ref(syncRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentSyncRuns: reading query: %w", err)
	}

	var runs []*SyncRunRow
	for {
		var row SyncRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentSyncRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
