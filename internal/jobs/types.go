package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
)

// Trigger records what started a sync job.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerWebhook  Trigger = "webhook"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// SyncJob is a request to run one sync pass.
type SyncJob struct {
	JobID string `json:"job_id"`

	// Destinations to run, in order. Empty means every enabled destination.
	Destinations []domain.Destination `json:"destinations,omitempty"`
	Trigger      Trigger              `json:"trigger"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Uploaded is the number of records created across destinations.
	Uploaded int    `json:"uploaded"`
	Error    string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishSync(ctx context.Context, job *SyncJob) error
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the job in flight to complete.
	Stop(ctx context.Context) error
}

// JobHandler runs a job and returns the number of records it created.
// An error is retried unless it is wrapped with Permanent.
type JobHandler func(ctx context.Context, job *SyncJob) (int, error)

// JobStore stores job state so it can be polled.
type JobStore interface {
	SaveJob(ctx context.Context, job *SyncJob) error
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Status  JobStatus
	Trigger Trigger

	// Limit limits the number of results.
	Limit int
}

// ErrJobNotFound is returned by JobStore.GetJob for unknown ids.
var ErrJobNotFound = errors.New("job not found")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
