package compaction

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/timeline"
	"github.com/devrev/tablecore/internal/view"
)

const (
	ts1 = "20240101000000001"
	ts2 = "20240101000000002"
	ts3 = "20240101000000003"
	ts4 = "20240101000000004"
)

func file(partition, name string, size int64) storage.FileInfo {
	return storage.FileInfo{Path: path.Join(partition, name), PartitionPath: partition, Name: name, Size: size}
}

func plannerView(pending map[model.FileGroupID]string) *view.View {
	tl := timeline.New([]model.Instant{
		delta(ts1),
		instant(ts2, model.ActionCommit, model.StateCompleted),
		delta(ts3),
	})
	return view.Build(view.Input{
		Timeline: tl,
		Files: []storage.FileInfo{
			// small: base plus one log
			file("p1", model.BaseFileName("small", "a", ts2), 500),
			file("p1", model.LogFileName("small", ts2, 1, "b"), 10),
			// large: pure log group
			file("p1", model.LogFileName("large", ts1, 1, "c"), 300),
			file("p1", model.LogFileName("large", ts1, 2, "d"), 200),
			// medium in another partition
			file("p2", model.LogFileName("medium", ts3, 1, "e"), 100),
			// compacted with no new logs
			file("p2", model.BaseFileName("clean", "f", ts2), 900),
		},
		PendingCompactions: pending,
	})
}

func TestBuildPlan_OrdersByLogBytes(t *testing.T) {
	plan := BuildPlan(plannerView(nil), ts4, 0)

	assert.Equal(t, ts4, plan.InstantTime)
	assert.Equal(t, StrategyLogFileSize, plan.Strategy)
	require.Len(t, plan.Operations, 3)
	assert.Equal(t, "large", plan.Operations[0].FileID)
	assert.Equal(t, int64(500), plan.Operations[0].TotalLogBytes)
	assert.Empty(t, plan.Operations[0].BaseFilePath)
	assert.Equal(t, ts1, plan.Operations[0].BaseInstantTime)
	assert.Len(t, plan.Operations[0].LogFilePaths, 2)
	assert.Equal(t, "medium", plan.Operations[1].FileID)
	assert.Equal(t, "small", plan.Operations[2].FileID)
	assert.Equal(t, path.Join("p1", model.BaseFileName("small", "a", ts2)), plan.Operations[2].BaseFilePath)
	assert.Equal(t, int64(610), plan.TotalLogBytes())
}

func TestBuildPlan_BoundedIO(t *testing.T) {
	// the operation crossing the target is still included
	plan := BuildPlan(plannerView(nil), ts4, 550)
	assert.Equal(t, StrategyBoundedIO, plan.Strategy)
	require.Len(t, plan.Operations, 2)
	assert.Equal(t, "large", plan.Operations[0].FileID)
	assert.Equal(t, "medium", plan.Operations[1].FileID)

	plan = BuildPlan(plannerView(nil), ts4, 500)
	require.Len(t, plan.Operations, 1)
}

func TestBuildPlan_SkipsPendingGroups(t *testing.T) {
	pending := map[model.FileGroupID]string{{PartitionPath: "p1", FileID: "large"}: "20231231000000000"}
	plan := BuildPlan(plannerView(pending), ts4, 0)
	require.Len(t, plan.Operations, 2)
	for _, op := range plan.Operations {
		assert.NotEqual(t, "large", op.FileID)
	}
}

func TestBuildPlan_Empty(t *testing.T) {
	v := view.Build(view.Input{Timeline: timeline.New(nil)})
	plan := BuildPlan(v, ts4, 0)
	assert.Empty(t, plan.Operations)
}
