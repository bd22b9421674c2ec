// Package main runs the table daemon: background compaction, health checks and metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/config"
	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/health"
	"github.com/devrev/tablecore/internal/logging"
	"github.com/devrev/tablecore/internal/metrics"
	"github.com/devrev/tablecore/internal/server"
	"github.com/devrev/tablecore/internal/service"
	"github.com/devrev/tablecore/internal/storage/diskmanager"
	"github.com/devrev/tablecore/internal/table"
)

const (
	healthCheckInterval = 30 * time.Second
	shutdownTimeout     = 30 * time.Second
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = ""
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Table.BasePath == "" {
		logger.Fatal("table.base_path is required")
	}

	logger.Info("Configuration loaded",
		zap.String("base_path", cfg.Table.BasePath),
		zap.String("instant_store", cfg.Table.InstantStore.Backend),
		zap.String("strategy", cfg.Compaction.TriggerStrategy),
		zap.Bool("inline", cfg.Compaction.Inline))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tbl, err := openOrInit(ctx, cfg, table.Options{
		Logger:  logger,
		Metrics: metrics.NewMetrics(reg, cfg.Table.Name),
	})
	if err != nil {
		logger.Fatal("Failed to open table", zap.Error(err))
	}
	defer tbl.Close()

	disk, err := diskmanager.NewDiskManager(diskmanager.Config{DataDir: cfg.Table.BasePath}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize disk manager", zap.Error(err))
	}

	client := service.NewWriteClient(tbl, disk)

	// Finish compactions left inflight by a previous process before accepting new work
	recovered, err := client.RunPendingCompactions(ctx)
	if err != nil {
		logger.Error("Failed to complete pending compactions", zap.Error(err))
	} else if len(recovered) > 0 {
		logger.Info("Completed pending compactions", zap.Strings("instants", recovered))
	}

	var compactionSvc *service.CompactionService
	if !cfg.Compaction.Inline {
		compactionSvc = service.NewCompactionService(client, logger)
		compactionSvc.Start(ctx)
	}

	healthChecker := health.NewHealthChecker(tbl, disk, cfg.Health, logger)
	go healthChecker.Start(ctx, healthCheckInterval)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(server.MetricsServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
		}, reg, healthChecker, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	logger.Info("Table daemon started",
		zap.String("table", tbl.Name()),
		zap.String("base_path", tbl.BasePath()))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	healthChecker.SetReadiness(false)

	if compactionSvc != nil {
		if err := compactionSvc.Stop(shutdownTimeout); err != nil {
			logger.Error("Failed to stop compaction service", zap.Error(err))
		}
	}
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}
}

// openOrInit opens the table at the configured base path, creating it on first start
func openOrInit(ctx context.Context, cfg *config.Config, opts table.Options) (*table.Table, error) {
	tbl, err := table.Open(ctx, cfg, opts)
	if tcerrors.IsCode(err, tcerrors.ErrCodeTableNotFound) {
		opts.Logger.Info("Table not found, initializing", zap.String("base_path", cfg.Table.BasePath))
		return table.Init(ctx, cfg, opts)
	}
	return tbl, err
}
