// Package handlers implements the optional, read-only status HTTP
// surface spec.md §6 describes: GET /healthz, GET /metrics, GET
// /api/status. Grounded on the teacher's handlers.go for the
// mux-route-plus-JSON-response shape (its GetStatusHandler and
// GetStatsHandler), rebuilt around the Progress Tracker's on-disk
// snapshot rather than an in-memory per-request download map — this
// engine's downloads run as one batch CLI job, not individual
// HTTP-triggered conversions, so there is no per-request Download to
// look up by id. The request-triggered download/convert/SSE handlers
// the teacher had (DownloadBookHandler, downloadBookAsync,
// convertWithCalibre, StreamDownloadStatusHandler, GetBookInfoHandler,
// GetFileHandler) have no SPEC_FULL.md counterpart and are not carried
// over; see DESIGN.md for the per-handler justification.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oreilly-library/internal/events"
	"oreilly-library/internal/progress"
)

// Server exposes the read-only status endpoints. Every request re-reads
// the snapshot from disk, so the server always reflects whatever a
// concurrently running discover/download process last persisted rather
// than caching a stale in-memory copy.
type Server struct {
	ProgressPath string
	SessionType  string // "discovery" or "download"
	Metrics      *events.MetricsSink
}

// HealthzHandler reports liveness only; it never touches the snapshot.
func (s *Server) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// StatusHandler serves the current Progress snapshot as JSON, per
// spec.md §6's Progress snapshot file format.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	tracker, err := progress.Load(s.ProgressPath, s.SessionType)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "progress snapshot unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracker.Snapshot())
}

// MetricsHandler serves the configured Prometheus registry, or a 404 if
// no metrics sink was wired for this run.
func (s *Server) MetricsHandler() http.Handler {
	if s.Metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "metrics not enabled for this run"})
		})
	}
	return promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{})
}
