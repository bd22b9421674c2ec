package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/health"
	"github.com/devrev/tablecore/internal/model"
)

// MetricsServer serves Prometheus metrics and health probes via HTTP
type MetricsServer struct {
	router     *mux.Router
	httpServer *http.Server
	health     *health.HealthChecker
	logger     *zap.Logger
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port        int
	MetricsPath string
}

// NewMetricsServer creates a metrics server exposing gatherer
func NewMetricsServer(cfg MetricsServerConfig, gatherer prometheus.Gatherer, hc *health.HealthChecker, logger *zap.Logger) *MetricsServer {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	router := mux.NewRouter()
	s := &MetricsServer{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		health: hc,
		logger: logger,
	}

	router.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	return s
}

// Handler returns the routed handler, for tests
func (s *MetricsServer) Handler() http.Handler { return s.router }

// Start starts serving in the background
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping metrics server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// healthHandler reports the overall status and every check; it only fails when unhealthy
func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.health.GetStatus()
	code := http.StatusOK
	if status.Status == model.TableStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"table":     status.Table,
		"status":    status.Status,
		"timestamp": time.Unix(status.Timestamp, 0).UTC().Format(time.RFC3339),
		"metrics":   status.Metrics,
		"checks":    s.health.GetChecks(),
	})
}

// readyHandler handles readiness probe requests
func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.health.IsReady()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"ready":  ready,
		"status": s.health.GetStatus().Status,
	})
}
