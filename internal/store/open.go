package store

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/config"
)

// SQLiteFileName is the database file used by the sqlite backend inside the meta folder
const SQLiteFileName = "timeline.db"

// Open builds the configured instant store for a table whose meta folder is metaDir,
// wrapped in a RetryingStore
func Open(ctx context.Context, cfg *config.Config, metaDir string, logger *zap.Logger) (InstantStore, error) {
	var (
		inner InstantStore
		err   error
	)
	switch cfg.Table.InstantStore.Backend {
	case config.BackendFile, "":
		inner, err = NewFileInstantStore(metaDir, logger)
	case config.BackendSQLite:
		path := cfg.Table.InstantStore.DSN
		if path == "" {
			path = filepath.Join(metaDir, SQLiteFileName)
		}
		inner, err = NewSQLiteInstantStore(path, logger)
	case config.BackendPostgres:
		inner, err = NewPostgresInstantStore(ctx, cfg.Table.InstantStore.DSN, cfg.Table.Name, logger)
	default:
		return nil, fmt.Errorf("unknown instant store backend %q", cfg.Table.InstantStore.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s instant store: %w", cfg.Table.InstantStore.Backend, err)
	}

	logger.Info("Instant store opened",
		zap.String("backend", cfg.Table.InstantStore.Backend),
		zap.String("table", cfg.Table.Name))

	return NewRetryingStore(inner, RetryPolicy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxElapsed:      cfg.Retry.MaxElapsed,
	}, logger), nil
}
