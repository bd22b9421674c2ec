package diskmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
)

func newTestManager(t *testing.T, total, available uint64) *DiskManager {
	t.Helper()
	dm, err := NewDiskManager(Config{DataDir: t.TempDir(), CheckInterval: time.Hour, MaxUsage: 0.9}, zap.NewNop())
	require.NoError(t, err)
	dm.statfs = func(string) (uint64, uint64, error) { return total, available, nil }
	dm.mu.Lock()
	require.NoError(t, dm.checkDiskSpace())
	dm.mu.Unlock()
	return dm
}

func TestDiskManager_AllowsWrites(t *testing.T) {
	dm := newTestManager(t, 1000, 500)
	assert.NoError(t, dm.CheckBeforeWrite(100))

	stats := dm.Usage()
	assert.InDelta(t, 0.5, stats.Usage, 0.0001)
	assert.False(t, stats.Rejecting)
}

func TestDiskManager_RejectsAboveLimit(t *testing.T) {
	dm := newTestManager(t, 1000, 50)
	err := dm.CheckBeforeWrite(1)
	require.Error(t, err)
	assert.True(t, tcerrors.IsTransient(err))
	assert.True(t, dm.Usage().Rejecting)
}

func TestDiskManager_InsufficientSpace(t *testing.T) {
	dm := newTestManager(t, 1000, 500)
	err := dm.CheckBeforeWrite(600)
	assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeUnavailable))
}

func TestNewDiskManager_RequiresDir(t *testing.T) {
	_, err := NewDiskManager(Config{}, zap.NewNop())
	assert.Error(t, err)
}
