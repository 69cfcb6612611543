// Package api exposes sync passes over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-sync/internal/api/handlers"
	"github.com/dvloznov/budget-sync/internal/api/middleware"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/report"
)

// Deps are the collaborators of the router.
type Deps struct {
	Publisher    jobs.Publisher
	Jobs         jobs.JobStore
	Latest       *report.Latest
	Runs         handlers.RunLister
	Destinations []domain.Destination
	APIToken     string
	Log          zerolog.Logger
}

// NewRouter builds the HTTP handler with its middleware chain.
func NewRouter(d Deps) http.Handler {
	syncHandler := handlers.NewSyncHandler(d.Publisher, d.Destinations, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Log)
	statusHandler := handlers.NewStatusHandler(d.Latest)
	runsHandler := handlers.NewRunsHandler(d.Runs, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/sync", only(http.MethodPost, syncHandler.Enqueue))

	mux.HandleFunc("/api/jobs", only(http.MethodGet, jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	mux.HandleFunc("/api/status", only(http.MethodGet, statusHandler.GetStatus))
	mux.HandleFunc("/api/runs", only(http.MethodGet, runsHandler.ListRuns))
	mux.HandleFunc("/health", handlers.Health)

	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(
					middleware.Auth(d.APIToken)(mux),
				),
			),
		),
	)
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
