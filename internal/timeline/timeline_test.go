package timeline

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/tablecore/internal/clock"
	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

func instant(ts string, action model.Action, state model.State) model.Instant {
	return model.NewInstant(state, action, ts)
}

func sampleTimeline() *Timeline {
	return New([]model.Instant{
		instant("20240101000000004", model.ActionCompaction, model.StateRequested),
		instant("20240101000000001", model.ActionDeltaCommit, model.StateCompleted),
		instant("20240101000000003", model.ActionCommit, model.StateCompleted),
		instant("20240101000000002", model.ActionDeltaCommit, model.StateCompleted),
		instant("20240101000000005", model.ActionDeltaCommit, model.StateInflight),
		instant("20240101000000006", model.ActionReplace, model.StateCompleted),
	})
}

func TestTimeline_Ordering(t *testing.T) {
	tl := sampleTimeline()
	ts := tl.Timestamps()
	assert.True(t, slices.IsSorted(ts))
	assert.Equal(t, 6, tl.Count())

	last, ok := tl.LastInstant()
	require.True(t, ok)
	assert.Equal(t, "20240101000000006", last.Timestamp)
}

func TestTimeline_Filters(t *testing.T) {
	tl := sampleTimeline()

	assert.Equal(t, 4, tl.FilterCompleted().Count())
	assert.Equal(t, 2, tl.FilterPending().Count())
	assert.True(t, tl.FilterCompleted().FilterPending().Empty())
	assert.Equal(t, 1, tl.FilterInflight().Count())
	assert.Equal(t, 1, tl.FilterRequested().Count())
	assert.Equal(t, 5, tl.FilterWriteActions().Count())
	assert.Equal(t, 1, tl.FilterCompactions().Count())
	assert.Equal(t, 1, tl.FilterPendingCompactions().Count())
	assert.Equal(t, 3, tl.FilterDeltaCommits().Count())
	assert.Equal(t, 1, tl.FilterCommits().Count())
	assert.Equal(t, 2, tl.FilterCommitAndReplace().Count())
	assert.Equal(t, 6, tl.FilterWriteAndCompaction().Count())
	assert.Equal(t, 5, tl.FilterCompletedAndCompactions().Count())

	assert.Equal(t, []string{"20240101000000004", "20240101000000005", "20240101000000006"},
		tl.FindInstantsAfter("20240101000000003").Timestamps())
	assert.Equal(t, []string{"20240101000000001", "20240101000000002"},
		tl.FindInstantsBeforeOrOn("20240101000000002").Timestamps())

	// filtering never mutates the source snapshot
	assert.Equal(t, 6, tl.Count())
}

func TestTimeline_InstantsInRange(t *testing.T) {
	tl := sampleTimeline()

	var exclusive, inclusive []string
	for in := range tl.InstantsInRange("20240101000000003", false) {
		exclusive = append(exclusive, in.Timestamp)
	}
	for in := range tl.InstantsInRange("20240101000000003", true) {
		inclusive = append(inclusive, in.Timestamp)
	}
	assert.Equal(t, []string{"20240101000000001", "20240101000000002"}, exclusive)
	assert.Equal(t, []string{"20240101000000001", "20240101000000002", "20240101000000003"}, inclusive)
}

func TestTimeline_SequencesAreRestartable(t *testing.T) {
	seq := sampleTimeline().Instants()

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 6, count())
	assert.Equal(t, 6, count())

	// stopping one traversal early does not affect the next
	for range seq {
		break
	}
	assert.Equal(t, 6, count())
}

func TestTimeline_GetInstant(t *testing.T) {
	tl := sampleTimeline()
	in, ok := tl.GetInstant("20240101000000004")
	require.True(t, ok)
	assert.Equal(t, model.ActionCompaction, in.Action)
	assert.False(t, tl.ContainsInstant("20240101000000009"))
}

func TestFromArtifacts(t *testing.T) {
	t.Run("collapses to most advanced state", func(t *testing.T) {
		tl, err := FromArtifacts([]model.Instant{
			instant("20240101000000001", model.ActionDeltaCommit, model.StateRequested),
			instant("20240101000000001", model.ActionDeltaCommit, model.StateInflight),
			instant("20240101000000001", model.ActionDeltaCommit, model.StateCompleted),
			instant("20240101000000002", model.ActionCompaction, model.StateRequested),
			instant("20240101000000002", model.ActionCompaction, model.StateInflight),
			instant("20240101000000002", model.ActionCommit, model.StateCompleted),
			instant("20240101000000003", model.ActionCompaction, model.StateRequested),
		})
		require.NoError(t, err)
		require.Equal(t, 3, tl.Count())

		list := tl.List()
		assert.Equal(t, instant("20240101000000001", model.ActionDeltaCommit, model.StateCompleted), list[0])
		assert.Equal(t, instant("20240101000000002", model.ActionCommit, model.StateCompleted), list[1])
		assert.Equal(t, instant("20240101000000003", model.ActionCompaction, model.StateRequested), list[2])
	})

	t.Run("conflicting actions are corrupt", func(t *testing.T) {
		_, err := FromArtifacts([]model.Instant{
			instant("20240101000000001", model.ActionDeltaCommit, model.StateCompleted),
			instant("20240101000000001", model.ActionReplace, model.StateRequested),
		})
		require.Error(t, err)
		assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeCorruptedMetadata))
	})
}

func TestInstantTimeGenerator(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	gen, err := NewInstantTimeGenerator(clk, "")
	require.NoError(t, err)

	first := gen.Next()
	assert.Equal(t, "20240101000000000", first)
	assert.Len(t, first, model.InstantTimeLength)

	// clock did not move: bumped by one millisecond
	second := gen.Next()
	assert.Equal(t, "20240101000000001", second)

	clk.Advance(10 * time.Second)
	third := gen.Next()
	assert.Equal(t, "20240101000010000", third)

	require.NoError(t, gen.Observe("20250101000000000"))
	assert.Equal(t, "20250101000000001", gen.Next())
}

func TestInstantTimeGenerator_ObserveRejectsMalformed(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	gen, err := NewInstantTimeGenerator(clk, "")
	require.NoError(t, err)

	for _, ts := range []string{"garbage", "2024", "99999999999999999"} {
		assert.Error(t, gen.Observe(ts), ts)
	}
	// earlier instants never lower the bound
	require.NoError(t, gen.Observe("20230101000000000"))
	assert.Equal(t, "20240101000000000", gen.Next())
}

func TestInstantTimeGenerator_SeededAhead(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	gen, err := NewInstantTimeGenerator(clk, "20240101000000500")
	require.NoError(t, err)
	assert.Equal(t, "20240101000000501", gen.Next())

	_, err = NewInstantTimeGenerator(clk, "not-a-time")
	assert.Error(t, err)
}

func TestElapsed(t *testing.T) {
	d, err := Elapsed("20240101000000000", "20240101000010500")
	require.NoError(t, err)
	assert.Equal(t, 10500*time.Millisecond, d)

	ts := FormatInstantTime(time.Date(2024, 2, 29, 23, 59, 59, 999_000_000, time.FixedZone("x", 3600)))
	assert.Equal(t, "20240229225959999", ts)
}

func TestCompactionPlanSerde(t *testing.T) {
	plan := &model.CompactionPlan{
		InstantTime: "20240101000000009",
		Strategy:    "num_commits",
		Operations: []model.CompactionOperation{
			{
				PartitionPath:   "p1",
				FileID:          "f1",
				BaseInstantTime: "20240101000000001",
				LogFilePaths:    []string{"p1/.f1_20240101000000001.log.1_aa", "p1/.f1_20240101000000001.log.2_bb"},
				TotalLogBytes:   1024,
			},
			{
				PartitionPath:   "p2",
				FileID:          "f2",
				BaseInstantTime: "20240101000000003",
				BaseFilePath:    "p2/f2_cc_20240101000000003.base",
				LogFilePaths:    []string{"p2/.f2_20240101000000003.log.1_dd"},
				TotalLogBytes:   10,
			},
		},
	}

	data, err := EncodeCompactionPlan(plan)
	require.NoError(t, err)
	decoded, err := DecodeCompactionPlan(data)
	require.NoError(t, err)
	assert.Equal(t, plan, decoded)
	assert.Equal(t, int64(1034), decoded.TotalLogBytes())

	_, err = DecodeCompactionPlan([]byte{0xff})
	assert.Error(t, err)
}

func TestCommitMetadataSerde(t *testing.T) {
	md, err := DecodeCommitMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, md.WriteStats)

	_, err = DecodeCommitMetadata([]byte("{"))
	assert.Error(t, err)
}
