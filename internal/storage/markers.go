package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// MarkerSuffix is appended to a data file path to mark an intended creation
const MarkerSuffix = ".marker.CREATE"

// Markers records the data files an instant intends to create, so a crashed attempt
// can be cleaned up before it is retried or finalized
type Markers struct {
	storage     Storage
	instantTime string
}

// NewMarkers returns the marker set of one instant
func NewMarkers(s Storage, instantTime string) *Markers {
	return &Markers{storage: s, instantTime: instantTime}
}

// Dir is the marker directory relative to the base path
func (m *Markers) Dir() string {
	return path.Join(MetaFolderName, TempFolderName, m.instantTime)
}

// Create records the intent to write dataPath
func (m *Markers) Create(ctx context.Context, dataPath string) error {
	markerPath := path.Join(m.Dir(), dataPath+MarkerSuffix)
	if err := m.storage.WriteFile(ctx, markerPath, nil); err != nil {
		return fmt.Errorf("failed to create marker for %s: %w", dataPath, err)
	}
	return nil
}

// List returns the data paths that have a marker
func (m *Markers) List(ctx context.Context) ([]string, error) {
	rel := path.Join(TempFolderName, m.instantTime)
	files, err := m.storage.ListMeta(ctx, rel+"/**/*"+MarkerSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	prefix := m.Dir() + "/"
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, strings.TrimSuffix(strings.TrimPrefix(f.Path, prefix), MarkerSuffix))
	}
	return paths, nil
}

// Delete removes the marker directory
func (m *Markers) Delete(ctx context.Context) error {
	return m.storage.DeleteDir(ctx, m.Dir())
}
