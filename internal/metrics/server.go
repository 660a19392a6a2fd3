package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes the collector's Prometheus counters over HTTP, scoped to
// the bind address of the syslog collector it's reporting for (spec.md §4.8
// calls out metrics as an ambient, non-core concern — this is the optional
// exposition surface, not the collector's own lifecycle).
type Server struct {
	addr   string
	path   string
	bind   string
	log    logrus.FieldLogger
	server *http.Server
}

// NewServer creates a metrics server listening on addr, exposing handlers at
// path (default "/metrics"), logging through log tagged with the collector's
// bind address.
func NewServer(addr, path, bind string, log logrus.FieldLogger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{addr: addr, path: path, bind: bind, log: log}
}

// Start starts the metrics HTTP server in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	fields := logrus.Fields{"addr": s.addr, "path": s.path, "bind": s.bind}
	s.log.WithFields(fields).Info("starting metrics server for syslog collector")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithFields(fields).WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	fields := logrus.Fields{"addr": s.addr, "bind": s.bind}
	s.log.WithFields(fields).Info("stopping metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	s.log.WithFields(fields).Info("metrics server stopped")
	return nil
}
