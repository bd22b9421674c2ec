package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// SQLiteInstantStore keeps instant artifacts in an embedded SQLite database in WAL mode
type SQLiteInstantStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteInstantStore opens (or creates) the database at path and initializes the schema
func NewSQLiteInstantStore(path string, logger *zap.Logger) (*SQLiteInstantStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteInstantStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteInstantStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instants (
		instant_time TEXT NOT NULL,
		action       TEXT NOT NULL,
		state        TEXT NOT NULL,
		content      BLOB,
		created_at   TEXT NOT NULL,
		PRIMARY KEY (instant_time, action, state)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteInstantStore) PutInstant(ctx context.Context, instant model.Instant, content []byte) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO instants (instant_time, action, state, content, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(instant_time, action, state) DO NOTHING`,
		instant.Timestamp, string(instant.Action), string(instant.State), content,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return classifySQLiteErr("failed to insert instant", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classifySQLiteErr("failed to insert instant", err)
	}
	if n == 0 {
		return tcerrors.InstantExists(instant.FileName())
	}
	return nil
}

func (s *SQLiteInstantStore) ListInstants(ctx context.Context) ([]model.Instant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instant_time, action, state FROM instants`)
	if err != nil {
		return nil, classifySQLiteErr("failed to list instants", err)
	}
	defer rows.Close()

	var instants []model.Instant
	for rows.Next() {
		var ts, action, state string
		if err := rows.Scan(&ts, &action, &state); err != nil {
			return nil, classifySQLiteErr("failed to scan instant", err)
		}
		instants = append(instants, model.NewInstant(model.State(state), model.Action(action), ts))
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteErr("failed to list instants", err)
	}
	return instants, nil
}

func (s *SQLiteInstantStore) ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM instants WHERE instant_time = ? AND action = ? AND state = ?`,
		instant.Timestamp, string(instant.Action), string(instant.State),
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tcerrors.InstantNotFound(instant.FileName())
	}
	if err != nil {
		return nil, classifySQLiteErr("failed to read instant", err)
	}
	return content, nil
}

func (s *SQLiteInstantStore) DeleteInstant(ctx context.Context, instant model.Instant) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM instants WHERE instant_time = ? AND action = ? AND state = ?`,
		instant.Timestamp, string(instant.Action), string(instant.State),
	)
	if err != nil {
		return classifySQLiteErr("failed to delete instant", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return tcerrors.InstantNotFound(instant.FileName())
	}
	return nil
}

func (s *SQLiteInstantStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return tcerrors.Unavailable("sqlite instant store not reachable", err)
	}
	return nil
}

func (s *SQLiteInstantStore) Close() error { return s.db.Close() }

// classifySQLiteErr marks lock contention as transient so the retrying store backs off
func classifySQLiteErr(message string, err error) error {
	if isTransientSQLiteErr(err) {
		return tcerrors.Unavailable(message, err)
	}
	return tcerrors.DurableWriteFailed(message, err)
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
