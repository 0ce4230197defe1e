// Command statusserver runs the optional, read-only status HTTP
// surface spec.md §6 describes, so an operator (or a dashboard) can
// poll a discover/download run's progress without tailing the
// live-stats text file. It never mutates the run it observes. Grounded
// on the teacher's cmd/server/main.go for the mux router + CORS wiring;
// the download-triggering routes and the embedded static UI are gone,
// since this binary reports on a run rather than starting one.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"oreilly-library/internal/config"
	"oreilly-library/internal/events"
	"oreilly-library/internal/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	sessionType := "download"
	if len(os.Args) > 1 {
		sessionType = os.Args[1]
	}

	var metrics *events.MetricsSink
	if cfg.MetricsAddr != "" {
		metrics = events.NewMetricsSink()
	}

	srv := &handlers.Server{
		ProgressPath: cfg.ProgressPath,
		SessionType:  sessionType,
		Metrics:      metrics,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", srv.HealthzHandler).Methods("GET")
	router.HandleFunc("/api/status", srv.StatusHandler).Methods("GET")
	router.Handle("/metrics", srv.MetricsHandler()).Methods("GET")

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}).Handler(router)

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.StatusPort)
	log.Printf("status server listening on http://%s (progress file: %s)", addr, cfg.ProgressPath)

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
