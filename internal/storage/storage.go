package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MetaFolderName holds instant artifacts, table properties and markers
	MetaFolderName = ".timeline"
	// TempFolderName under the meta folder holds per-instant marker directories
	TempFolderName = ".temp"
	// AllPartitions matches every partition path
	AllPartitions = "**"
)

// ErrNotExist is returned when a data file is missing
var ErrNotExist = errors.New("file does not exist")

// FileInfo describes one listed file; paths are slash separated and relative to the base path
type FileInfo struct {
	Path          string
	PartitionPath string
	Name          string
	Size          int64
	ModTime       time.Time
}

// Storage is the file system abstraction the table core reads and writes data files through
type Storage interface {
	BasePath() string
	// WriteFile atomically creates relPath; existing files are never replaced
	WriteFile(ctx context.Context, relPath string, data []byte) error
	ReadFile(ctx context.Context, relPath string) ([]byte, error)
	// Delete removes relPath; a missing file is not an error
	Delete(ctx context.Context, relPath string) error
	DeleteDir(ctx context.Context, relDir string) error
	Exists(ctx context.Context, relPath string) (bool, error)
	// List returns data files whose partition path matches partitionGlob, skipping the meta folder
	List(ctx context.Context, partitionGlob string) ([]FileInfo, error)
	// ListMeta returns files under the meta folder whose path relative to it matches glob
	ListMeta(ctx context.Context, glob string) ([]FileInfo, error)
}

// LocalStorage implements Storage on the local file system
type LocalStorage struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalStorage creates a storage rooted at basePath
func NewLocalStorage(basePath string, logger *zap.Logger) (*LocalStorage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &LocalStorage{basePath: abs, logger: logger}, nil
}

func (s *LocalStorage) BasePath() string { return s.basePath }

func (s *LocalStorage) abs(relPath string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(relPath))
}

func (s *LocalStorage) WriteFile(ctx context.Context, relPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	final := s.abs(relPath)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(final), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", relPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", relPath, err)
	}
	if err := os.Link(tmp, final); err != nil {
		return fmt.Errorf("failed to publish %s: %w", relPath, err)
	}
	return nil
}

func (s *LocalStorage) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.abs(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, relPath)
		}
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	return data, nil
}

func (s *LocalStorage) Delete(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.abs(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", relPath, err)
	}
	return nil
}

func (s *LocalStorage) DeleteDir(ctx context.Context, relDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.abs(relDir)); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", relDir, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, relPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.abs(relPath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", relPath, err)
}

func (s *LocalStorage) List(ctx context.Context, partitionGlob string) ([]FileInfo, error) {
	if partitionGlob == "" {
		partitionGlob = AllPartitions
	}
	if _, err := doublestar.Match(partitionGlob, ""); err != nil {
		return nil, fmt.Errorf("invalid partition pattern %q: %w", partitionGlob, err)
	}
	return s.walk(ctx, s.basePath, func(rel string, d fs.DirEntry) (bool, error) {
		if d.IsDir() {
			return false, nil
		}
		partition := path.Dir(rel)
		if partition == "." {
			partition = ""
		}
		return doublestar.Match(partitionGlob, partition)
	}, true)
}

func (s *LocalStorage) ListMeta(ctx context.Context, glob string) ([]FileInfo, error) {
	root := filepath.Join(s.basePath, MetaFolderName)
	files, err := s.walk(ctx, root, func(rel string, d fs.DirEntry) (bool, error) {
		if d.IsDir() {
			return false, nil
		}
		return doublestar.Match(glob, rel)
	}, false)
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Path = path.Join(MetaFolderName, files[i].Path)
		files[i].PartitionPath = path.Dir(files[i].Path)
	}
	return files, nil
}

// walk visits regular files under root, skipping temp files and, when skipMeta is set, the
// meta folder. Paths passed to match are slash separated and relative to root.
func (s *LocalStorage) walk(ctx context.Context, root string, match func(rel string, d fs.DirEntry) (bool, error), skipMeta bool) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() && skipMeta && d.Name() == MetaFolderName {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.Contains(d.Name(), ".tmp-") {
			return nil
		}
		ok, err := match(rel, d)
		if err != nil || !ok {
			return err
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		partition := path.Dir(rel)
		if partition == "." {
			partition = ""
		}
		files = append(files, FileInfo{
			Path:          rel,
			PartitionPath: partition,
			Name:          d.Name(),
			Size:          info.Size(),
			ModTime:       info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
