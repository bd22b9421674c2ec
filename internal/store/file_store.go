package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// FileInstantStore keeps one file per artifact inside the table's meta folder
type FileInstantStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileInstantStore creates a store rooted at dir, creating the directory if needed
func NewFileInstantStore(dir string, logger *zap.Logger) (*FileInstantStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create timeline directory: %w", err)
	}
	return &FileInstantStore{dir: dir, logger: logger}, nil
}

// PutInstant writes a temp file and hard-links it into place; the link fails if the
// artifact already exists, which makes the create both atomic and exclusive
func (s *FileInstantStore) PutInstant(ctx context.Context, instant model.Instant, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	final := filepath.Join(s.dir, instant.FileName())
	tmp := filepath.Join(s.dir, fmt.Sprintf(".%s.tmp-%s", instant.FileName(), uuid.NewString()))

	if err := writeSynced(tmp, content); err != nil {
		os.Remove(tmp)
		return tcerrors.DurableWriteFailed("failed to write instant artifact", err).
			WithDetail("instant", instant.FileName())
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, final); err != nil {
		if os.IsExist(err) {
			return tcerrors.InstantExists(instant.FileName())
		}
		return tcerrors.DurableWriteFailed("failed to publish instant artifact", err).
			WithDetail("instant", instant.FileName())
	}
	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("Failed to sync timeline directory", zap.String("dir", s.dir), zap.Error(err))
	}
	return nil
}

func writeSynced(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// ListInstants returns the artifacts found in the directory, ignoring anything that is not
// an instant file name (temp files, properties, sub folders)
func (s *FileInstantStore) ListInstants(ctx context.Context) ([]model.Instant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, tcerrors.Unavailable("failed to list timeline directory", err)
	}
	instants := make([]model.Instant, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		in, err := model.ParseInstantFileName(e.Name())
		if err != nil {
			continue
		}
		instants = append(instants, in)
	}
	return instants, nil
}

func (s *FileInstantStore) ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, instant.FileName()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tcerrors.InstantNotFound(instant.FileName())
		}
		return nil, tcerrors.Unavailable("failed to read instant artifact", err)
	}
	return data, nil
}

func (s *FileInstantStore) DeleteInstant(ctx context.Context, instant model.Instant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, instant.FileName())); err != nil {
		if os.IsNotExist(err) {
			return tcerrors.InstantNotFound(instant.FileName())
		}
		return tcerrors.DurableWriteFailed("failed to delete instant artifact", err)
	}
	return nil
}

func (s *FileInstantStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return tcerrors.Unavailable("timeline directory not accessible", err)
	}
	return nil
}

func (s *FileInstantStore) Close() error { return nil }
