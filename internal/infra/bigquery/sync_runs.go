package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

const syncRunsTable = "sync_runs"

// Sync run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

type SyncRunRow struct {
	SyncRunID     string `bigquery:"sync_run_id"`    // REQUIRED
	Destination   string `bigquery:"destination"`    // REQUIRED
	TriggerSource string `bigquery:"trigger_source"` // NULLABLE

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status         string             `bigquery:"status"`          // NULLABLE
	Uploaded       bigquery.NullInt64 `bigquery:"uploaded"`        // NULLABLE
	AccountsSynced bigquery.NullInt64 `bigquery:"accounts_synced"` // NULLABLE

	ErrorKind    bigquery.NullString `bigquery:"error_kind"`    // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}
