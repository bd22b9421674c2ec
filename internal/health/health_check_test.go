package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/clock"
	"github.com/devrev/tablecore/internal/config"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/table"
)

func newTestTable(t *testing.T) (*table.Table, *clock.Manual) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Table.BasePath = t.TempDir()
	c := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	tbl, err := table.Init(context.Background(), cfg, table.Options{Clock: c, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl, c
}

func TestHealthChecker_Healthy(t *testing.T) {
	tbl, _ := newTestTable(t)
	h := NewHealthChecker(tbl, nil, config.HealthConfig{StaleInflightAfter: time.Minute}, zap.NewNop())

	h.RunChecks(context.Background())

	assert.True(t, h.IsReady())
	status := h.GetStatus()
	assert.Equal(t, model.TableStatusHealthy, status.Status)
	assert.Equal(t, tbl.Name(), status.Table)
	checks := h.GetChecks()
	assert.Len(t, checks, 4)
	for name, c := range checks {
		assert.Equal(t, StatusHealthy, c.Status, name)
	}
}

func TestHealthChecker_StaleInflightCompaction(t *testing.T) {
	ctx := context.Background()
	tbl, c := newTestTable(t)

	ts := tbl.NewInstantTime()
	requested, err := tbl.CreateRequested(ctx, model.ActionCompaction, ts, nil)
	require.NoError(t, err)
	_, err = tbl.Transition(ctx, requested, model.StateInflight, nil)
	require.NoError(t, err)

	h := NewHealthChecker(tbl, nil, config.HealthConfig{StaleInflightAfter: time.Minute}, zap.NewNop())
	h.RunChecks(ctx)
	assert.Equal(t, model.TableStatusHealthy, h.GetStatus().Status)

	c.Advance(2 * time.Minute)
	h.RunChecks(ctx)
	status := h.GetStatus()
	assert.Equal(t, model.TableStatusDegraded, status.Status)
	assert.Equal(t, 1, status.Metrics.PendingCompactions)
	assert.InDelta(t, 120, status.Metrics.OldestInflightAge, 1)
	assert.Equal(t, StatusWarning, h.GetChecks()["timeline"].Status)
	// a stale compaction does not stop writes, the next write cycle resumes it
	assert.True(t, h.IsReady())
}

func TestHealthChecker_SetReadiness(t *testing.T) {
	tbl, _ := newTestTable(t)
	h := NewHealthChecker(tbl, nil, config.HealthConfig{}, zap.NewNop())
	h.RunChecks(context.Background())
	h.SetReadiness(false)
	assert.False(t, h.IsReady())
}
