package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.SyncJob{JobID: "j1", Destinations: []domain.Destination{domain.DestinationActual}}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Destinations[0] = domain.DestinationYNAB
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationActual, got.Destinations[0], "store must keep its own copy")

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	assert.Error(t, s.SaveJob(ctx, &jobs.SyncJob{}))
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.SyncJob{
		{JobID: "a", Status: jobs.JobStatusCompleted, Trigger: jobs.TriggerManual},
		{JobID: "b", Status: jobs.JobStatusFailed, Trigger: jobs.TriggerSchedule},
		{JobID: "c", Status: jobs.JobStatusCompleted, Trigger: jobs.TriggerSchedule},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"c", "b", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"c", "a"}},
		{name: "by trigger", filter: jobs.JobFilter{Trigger: jobs.TriggerSchedule}, want: []string{"c", "b"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
