package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-sync/internal/api/middleware"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/infra/bigquery"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/report"
)

// SyncHandler enqueues sync passes.
type SyncHandler struct {
	publisher jobs.Publisher
	enabled   []domain.Destination
	log       zerolog.Logger
}

// NewSyncHandler creates a sync handler. enabled lists the destinations a
// request may name, in run order.
func NewSyncHandler(publisher jobs.Publisher, enabled []domain.Destination, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		enabled:   enabled,
		log:       log,
	}
}

// Enqueue handles POST /api/sync
func (h *SyncHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destinations []domain.Destination `json:"destinations"`
		Trigger      jobs.Trigger         `json:"trigger"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dests, ok := h.selectDestinations(req.Destinations)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown or disabled destination")
		return
	}

	switch req.Trigger {
	case "":
		req.Trigger = jobs.TriggerManual
	case jobs.TriggerManual, jobs.TriggerSchedule, jobs.TriggerWebhook:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Unknown trigger")
		return
	}

	job := &jobs.SyncJob{
		Destinations: dests,
		Trigger:      req.Trigger,
	}
	if err := h.publisher.PublishSync(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue sync job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("trigger", string(job.Trigger)).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// selectDestinations keeps the enabled run order and rejects names that are not enabled.
func (h *SyncHandler) selectDestinations(requested []domain.Destination) ([]domain.Destination, bool) {
	if len(requested) == 0 {
		return h.enabled, true
	}
	want := make(map[domain.Destination]bool, len(requested))
	for _, d := range requested {
		want[d] = true
	}
	var out []domain.Destination
	for _, d := range h.enabled {
		if want[d] {
			out = append(out, d)
			delete(want, d)
		}
	}
	return out, len(want) == 0
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status:  jobs.JobStatus(query.Get("status")),
		Trigger: jobs.Trigger(query.Get("trigger")),
		Limit:   queryInt(r, "limit", 0),
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// StatusHandler serves the report of the last completed pass.
type StatusHandler struct {
	latest *report.Latest
}

func NewStatusHandler(latest *report.Latest) *StatusHandler {
	return &StatusHandler{latest: latest}
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	rep := h.latest.Get()
	if rep == nil {
		middleware.WriteError(w, http.StatusNotFound, "No sync has completed yet")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rep)
}

// RunLister reads sync run history.
type RunLister interface {
	ListRecentSyncRuns(ctx context.Context, limit int) ([]*bigquery.SyncRunRow, error)
}

// RunsHandler serves sync run history.
type RunsHandler struct {
	runs RunLister
	log  zerolog.Logger
}

// NewRunsHandler creates a runs handler. runs may be nil when no history is configured.
func NewRunsHandler(runs RunLister, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, log: log}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return
	}

	runs, err := h.runs.ListRecentSyncRuns(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sync runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []*bigquery.SyncRunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
