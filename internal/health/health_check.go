package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/config"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/storage/diskmanager"
	"github.com/devrev/tablecore/internal/table"
	"github.com/devrev/tablecore/internal/timeline"
)

// Check statuses
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// HealthChecker performs health checks for one table
type HealthChecker struct {
	table  *table.Table
	disk   *diskmanager.DiskManager
	cfg    config.HealthConfig
	logger *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.TableStatus
	checks      map[string]CheckResult
	metrics     model.HealthMetrics
	readinessOK bool
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a new health checker; disk may be nil
func NewHealthChecker(t *table.Table, disk *diskmanager.DiskManager, cfg config.HealthConfig, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		table:       t,
		disk:        disk,
		cfg:         cfg,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		status:      model.TableStatusHealthy,
		readinessOK: true,
	}
}

// Start runs the checks every interval until ctx is done
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunChecks(ctx)
	for {
		select {
		case <-ticker.C:
			h.RunChecks(ctx)
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks runs all health checks and updates the overall status
func (h *HealthChecker) RunChecks(ctx context.Context) {
	var hm model.HealthMetrics
	results := []CheckResult{
		h.checkInstantStore(ctx),
		h.checkTimeline(ctx, &hm),
		h.checkMetaDirAccessible(),
		h.checkDiskSpace(&hm),
	}

	allHealthy, allReady := true, true
	for _, r := range results {
		if r.Status != StatusHealthy {
			allHealthy = false
			if r.Status == StatusCritical {
				allReady = false
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCheck = time.Now()
	for _, r := range results {
		h.checks[r.Name] = r
	}
	h.metrics = hm
	switch {
	case !allReady:
		h.status = model.TableStatusUnhealthy
	case !allHealthy:
		h.status = model.TableStatusDegraded
	default:
		h.status = model.TableStatusHealthy
	}
	h.readinessOK = allReady

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("readiness", h.readinessOK))
}

func result(name, status, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message, Timestamp: time.Now()}
}

func (h *HealthChecker) checkInstantStore(ctx context.Context) CheckResult {
	if err := h.table.Store().Ping(ctx); err != nil {
		return result("instant_store", StatusCritical, fmt.Sprintf("Instant store unreachable: %v", err))
	}
	return result("instant_store", StatusHealthy, "Instant store reachable")
}

// checkTimeline loads the timeline and flags compactions left inflight for too long
func (h *HealthChecker) checkTimeline(ctx context.Context, hm *model.HealthMetrics) CheckResult {
	tl, err := h.table.LoadTimeline(ctx)
	if err != nil {
		return result("timeline", StatusCritical, fmt.Sprintf("Timeline cannot be loaded: %v", err))
	}
	pending := tl.FilterPendingCompactions()
	hm.TimelineInstants = tl.Count()
	hm.PendingCompactions = pending.Count()

	oldest, ok := pending.FilterInflight().FirstInstant()
	if !ok {
		return result("timeline", StatusHealthy,
			fmt.Sprintf("%d instants, %d pending compactions", hm.TimelineInstants, hm.PendingCompactions))
	}
	started, err := timeline.ParseInstantTime(oldest.Timestamp)
	if err != nil {
		return result("timeline", StatusWarning, fmt.Sprintf("Unparsable inflight instant %s", oldest.Timestamp))
	}
	age := h.table.Clock().Now().Sub(started)
	hm.OldestInflightAge = age.Seconds()
	if h.cfg.StaleInflightAfter > 0 && age > h.cfg.StaleInflightAfter {
		return result("timeline", StatusWarning,
			fmt.Sprintf("Compaction %s inflight for %s", oldest.Timestamp, age.Truncate(time.Second)))
	}
	return result("timeline", StatusHealthy,
		fmt.Sprintf("%d instants, compaction %s inflight", hm.TimelineInstants, oldest.Timestamp))
}

// checkMetaDirAccessible checks that the meta folder is writable
func (h *HealthChecker) checkMetaDirAccessible() CheckResult {
	metaDir := filepath.Join(h.table.BasePath(), storage.MetaFolderName)
	info, err := os.Stat(metaDir)
	if err != nil {
		return result("meta_dir_accessible", StatusCritical, fmt.Sprintf("Meta directory not accessible: %v", err))
	}
	if !info.IsDir() {
		return result("meta_dir_accessible", StatusCritical, "Meta path is not a directory")
	}

	// dot files are never read as instants
	testFile := filepath.Join(metaDir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return result("meta_dir_accessible", StatusCritical, fmt.Sprintf("Cannot write to meta directory: %v", err))
	}
	f.Close()
	os.Remove(testFile)

	return result("meta_dir_accessible", StatusHealthy, "Meta directory is accessible and writable")
}

func (h *HealthChecker) checkDiskSpace(hm *model.HealthMetrics) CheckResult {
	if h.disk == nil {
		return result("disk_space", StatusHealthy, "Disk monitoring disabled")
	}
	stats := h.disk.Usage()
	hm.DiskUsage = stats.Usage
	h.table.Metrics().UpdateDiskStats(stats.Usage, stats.AvailableBytes)

	switch {
	case stats.Rejecting:
		return result("disk_space", StatusCritical, fmt.Sprintf("Disk usage critical: %.2f%%", stats.Usage*100))
	case h.cfg.MaxDiskUsage > 0 && stats.Usage > h.cfg.MaxDiskUsage:
		return result("disk_space", StatusWarning, fmt.Sprintf("Disk usage high: %.2f%%", stats.Usage*100))
	}
	return result("disk_space", StatusHealthy,
		fmt.Sprintf("Disk usage: %.2f%%, available: %.2f GB", stats.Usage*100, float64(stats.AvailableBytes)/1024/1024/1024))
}

// IsReady returns whether the table can serve writes
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// SetReadiness manually sets readiness status (for graceful shutdown)
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// GetStatus returns the current health status
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return model.HealthStatus{
		Table:     h.table.Name(),
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Metrics:   h.metrics,
	}
}

// GetChecks returns a copy of all check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}
