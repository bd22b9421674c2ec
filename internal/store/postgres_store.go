package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// PostgresInstantStore keeps the artifacts of many tables in one shared PostgreSQL table
type PostgresInstantStore struct {
	pool      *pgxpool.Pool
	tableName string
	logger    *zap.Logger
}

// NewPostgresInstantStore connects to dsn and creates the schema when missing
func NewPostgresInstantStore(ctx context.Context, dsn, tableName string, logger *zap.Logger) (*PostgresInstantStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresInstantStore{pool: pool, tableName: tableName, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

func (s *PostgresInstantStore) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS table_instants (
			table_name   TEXT NOT NULL,
			instant_time TEXT NOT NULL,
			action       TEXT NOT NULL,
			state        TEXT NOT NULL,
			content      BYTEA,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, instant_time, action, state)
		)
	`
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresInstantStore) PutInstant(ctx context.Context, instant model.Instant, content []byte) error {
	query := `
		INSERT INTO table_instants (table_name, instant_time, action, state, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	result, err := s.pool.Exec(ctx, query,
		s.tableName, instant.Timestamp, string(instant.Action), string(instant.State), content)
	if err != nil {
		return classifyPgErr("failed to insert instant", err)
	}
	if result.RowsAffected() == 0 {
		return tcerrors.InstantExists(instant.FileName())
	}
	return nil
}

func (s *PostgresInstantStore) ListInstants(ctx context.Context) ([]model.Instant, error) {
	query := `SELECT instant_time, action, state FROM table_instants WHERE table_name = $1`
	rows, err := s.pool.Query(ctx, query, s.tableName)
	if err != nil {
		return nil, classifyPgErr("failed to list instants", err)
	}
	defer rows.Close()

	var instants []model.Instant
	for rows.Next() {
		var ts, action, state string
		if err := rows.Scan(&ts, &action, &state); err != nil {
			return nil, classifyPgErr("failed to scan instant", err)
		}
		instants = append(instants, model.NewInstant(model.State(state), model.Action(action), ts))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgErr("failed to list instants", err)
	}
	return instants, nil
}

func (s *PostgresInstantStore) ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error) {
	query := `
		SELECT content FROM table_instants
		WHERE table_name = $1 AND instant_time = $2 AND action = $3 AND state = $4
	`
	var content []byte
	err := s.pool.QueryRow(ctx, query,
		s.tableName, instant.Timestamp, string(instant.Action), string(instant.State)).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tcerrors.InstantNotFound(instant.FileName())
	}
	if err != nil {
		return nil, classifyPgErr("failed to read instant", err)
	}
	return content, nil
}

func (s *PostgresInstantStore) DeleteInstant(ctx context.Context, instant model.Instant) error {
	query := `
		DELETE FROM table_instants
		WHERE table_name = $1 AND instant_time = $2 AND action = $3 AND state = $4
	`
	result, err := s.pool.Exec(ctx, query,
		s.tableName, instant.Timestamp, string(instant.Action), string(instant.State))
	if err != nil {
		return classifyPgErr("failed to delete instant", err)
	}
	if result.RowsAffected() == 0 {
		return tcerrors.InstantNotFound(instant.FileName())
	}
	return nil
}

func (s *PostgresInstantStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return tcerrors.Unavailable("postgres instant store not reachable", err)
	}
	return nil
}

func (s *PostgresInstantStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPgErr treats connection loss and serialization conflicts as transient
func classifyPgErr(message string, err error) error {
	if pgconn.SafeToRetry(err) {
		return tcerrors.Unavailable(message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P03",
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return tcerrors.Unavailable(message, err)
		}
	}
	return tcerrors.DurableWriteFailed(message, err)
}
