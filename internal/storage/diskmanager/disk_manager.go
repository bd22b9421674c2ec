package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
)

// DiskManager watches the file system holding a table and rejects writes that would fill it
type DiskManager struct {
	dataDir       string
	logger        *zap.Logger
	mu            sync.Mutex
	checkInterval time.Duration
	maxUsage      float64 // fraction of the disk above which writes are rejected
	statfs        func(path string) (total, available uint64, err error)

	lastCheck      time.Time
	usage          float64
	availableBytes uint64
	rejecting      bool
}

// Config holds configuration for the disk manager
type Config struct {
	DataDir       string
	CheckInterval time.Duration
	MaxUsage      float64
}

// NewDiskManager creates a disk manager for cfg.DataDir
func NewDiskManager(cfg Config, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.MaxUsage == 0 {
		cfg.MaxUsage = 0.95
	}

	dm := &DiskManager{
		dataDir:       cfg.DataDir,
		logger:        logger,
		checkInterval: cfg.CheckInterval,
		maxUsage:      cfg.MaxUsage,
		statfs:        statfs,
	}

	// Perform initial check
	dm.mu.Lock()
	if err := dm.checkDiskSpace(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}
	dm.mu.Unlock()

	return dm, nil
}

func statfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}

// CheckBeforeWrite returns an Unavailable error if writing estimatedBytes should be refused
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	if dm.rejecting {
		return tcerrors.Unavailable(fmt.Sprintf("disk usage at %.2f%%, writes rejected", dm.usage*100), nil).
			WithDetail("usage", dm.usage).
			WithDetail("available_bytes", dm.availableBytes)
	}
	if estimatedBytes > dm.availableBytes {
		return tcerrors.Unavailable(
			fmt.Sprintf("insufficient space: need %d bytes, have %d bytes", estimatedBytes, dm.availableBytes), nil)
	}
	return nil
}

// checkDiskSpace must be called with mu held
func (dm *DiskManager) checkDiskSpace() error {
	total, available, err := dm.statfs(dm.dataDir)
	if err != nil {
		return err
	}
	usage := 0.0
	if total > 0 {
		usage = float64(total-available) / float64(total)
	}

	wasRejecting := dm.rejecting
	dm.usage = usage
	dm.availableBytes = available
	dm.lastCheck = time.Now()
	dm.rejecting = usage >= dm.maxUsage

	if dm.rejecting && !wasRejecting {
		dm.logger.Error("Disk usage above limit, rejecting writes",
			zap.Float64("usage", usage),
			zap.Uint64("available_bytes", available),
			zap.Float64("max_usage", dm.maxUsage))
	} else if !dm.rejecting && wasRejecting {
		dm.logger.Info("Disk usage back under limit",
			zap.Float64("usage", usage),
			zap.Uint64("available_bytes", available))
	}
	return nil
}

// UsageStats contains disk usage statistics
type UsageStats struct {
	Usage          float64
	AvailableBytes uint64
	Rejecting      bool
	LastCheck      time.Time
}

// Usage returns current disk usage, refreshing it when stale
func (dm *DiskManager) Usage() UsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}
	return UsageStats{
		Usage:          dm.usage,
		AvailableBytes: dm.availableBytes,
		Rejecting:      dm.rejecting,
		LastCheck:      dm.lastCheck,
	}
}
