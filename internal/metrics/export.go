package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WriteTextfile writes the default registry in the text exposition format,
// suitable for the node_exporter textfile collector. The file is replaced
// atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	logging.Debug("Metrics written to %s", path)
	return nil
}

// Server exposes /metrics and /healthz while the pipeline runs in watch mode.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr (e.g. ":9090").
func NewServer(addr string) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods("GET")

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           middleware.Logger(middleware.DefaultLoggingConfig())(r),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		logging.Info("Metrics server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
