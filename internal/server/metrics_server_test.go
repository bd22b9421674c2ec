package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/clock"
	"github.com/devrev/tablecore/internal/config"
	"github.com/devrev/tablecore/internal/health"
	"github.com/devrev/tablecore/internal/metrics"
	"github.com/devrev/tablecore/internal/table"
)

func newTestServer(t *testing.T) (*MetricsServer, *health.HealthChecker) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Table.BasePath = t.TempDir()
	cfg.Table.Name = "orders"
	reg := prometheus.NewRegistry()
	tbl, err := table.Init(context.Background(), cfg, table.Options{
		Clock:   clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger:  zap.NewNop(),
		Metrics: metrics.NewMetrics(reg, cfg.Table.Name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })

	hc := health.NewHealthChecker(tbl, nil, cfg.Health, zap.NewNop())
	hc.RunChecks(context.Background())
	return NewMetricsServer(MetricsServerConfig{Port: 9090}, reg, hc, zap.NewNop()), hc
}

func TestMetricsServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tablecore_timeline_load_duration_seconds"))
	assert.True(t, strings.Contains(rec.Body.String(), `table="orders"`))
}

func TestMetricsServer_HealthAndReady(t *testing.T) {
	s, hc := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "orders", body["table"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	hc.SetReadiness(false)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ready", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
