package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.SyncJob {
	t.Helper()
	var job *jobs.SyncJob
	require.Eventually(t, func() bool {
		var err error
		job, err = store.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueue_PublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	defer q.Close()

	job := &jobs.SyncJob{Destinations: []domain.Destination{domain.DestinationYNAB}}
	require.NoError(t, q.PublishSync(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, jobs.TriggerManual, job.Trigger)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())

	stored, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Destination{domain.DestinationYNAB}, stored.Destinations)
}

func TestQueue_CompletesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (int, error) {
		return 7, nil
	}))
	job := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	require.NoError(t, q.PublishSync(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 7, done.Uploaded)
	assert.NotNil(t, done.CompletedAt)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	q.RetryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("feed unavailable")
		}
		return 2, nil
	}))
	job := &jobs.SyncJob{}
	require.NoError(t, q.PublishSync(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, done.Error)
}

func TestQueue_PermanentFailureIsNotRetried(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	q.RetryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (int, error) {
		calls.Add(1)
		return 0, jobs.Permanent(errors.New("pass in progress"))
	}))
	job := &jobs.SyncJob{}
	require.NoError(t, q.PublishSync(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, "pass in progress", failed.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	q.RetryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (int, error) {
		return 0, errors.New("commit failed")
	}))
	job := &jobs.SyncJob{MaxRetries: 2}
	require.NoError(t, q.PublishSync(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())

	err := q.PublishSync(context.Background(), &jobs.SyncJob{})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), nil))
}
