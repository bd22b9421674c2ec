package model

import (
	"sort"
	"testing"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ts1 = "20240101000000001"

func TestInstant_Transition(t *testing.T) {
	tests := []struct {
		name       string
		from       Instant
		to         State
		wantAction Action
		wantErr    bool
	}{
		{"delta requested to inflight", NewInstant(StateRequested, ActionDeltaCommit, ts1), StateInflight, ActionDeltaCommit, false},
		{"delta inflight to completed", NewInstant(StateInflight, ActionDeltaCommit, ts1), StateCompleted, ActionDeltaCommit, false},
		{"compaction requested to inflight", NewInstant(StateRequested, ActionCompaction, ts1), StateInflight, ActionCompaction, false},
		{"compaction completes as commit", NewInstant(StateInflight, ActionCompaction, ts1), StateCompleted, ActionCommit, false},
		{"replace inflight to completed", NewInstant(StateInflight, ActionReplace, ts1), StateCompleted, ActionReplace, false},
		{"skip inflight", NewInstant(StateRequested, ActionCommit, ts1), StateCompleted, "", true},
		{"backwards", NewInstant(StateInflight, ActionCommit, ts1), StateRequested, "", true},
		{"reopen completed", NewInstant(StateCompleted, ActionCommit, ts1), StateInflight, "", true},
		{"same state", NewInstant(StateInflight, ActionDeltaCommit, ts1), StateInflight, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tt.from.Transition(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, next.State)
			assert.Equal(t, tt.wantAction, next.Action)
			assert.Equal(t, tt.from.Timestamp, next.Timestamp)
		})
	}
}

func TestInstant_FileNameRoundTrip(t *testing.T) {
	in := NewInstant(StateInflight, ActionDeltaCommit, ts1)
	assert.Equal(t, "20240101000000001.delta_commit.inflight", in.FileName())

	parsed, err := ParseInstantFileName(in.FileName())
	require.NoError(t, err)
	assert.Equal(t, in, parsed)
}

func TestParseInstantFileName_Invalid(t *testing.T) {
	for _, name := range []string{
		"20240101000000001.commit",
		"2024010100000000.commit.completed",
		"2024010100000000x.commit.completed",
		"20240101000000001.clean.completed",
		"20240101000000001.commit.done",
	} {
		_, err := ParseInstantFileName(name)
		assert.Error(t, err, name)
	}
}

func TestInstant_Compare(t *testing.T) {
	instants := []Instant{
		NewInstant(StateCompleted, ActionCommit, "20240101000000003"),
		NewInstant(StateCompleted, ActionDeltaCommit, "20240101000000001"),
		NewInstant(StateRequested, ActionCompaction, "20240101000000002"),
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Compare(instants[j]) < 0 })

	assert.Equal(t, "20240101000000001", instants[0].Timestamp)
	assert.Equal(t, "20240101000000002", instants[1].Timestamp)
	assert.Equal(t, "20240101000000003", instants[2].Timestamp)

	requested := NewInstant(StateRequested, ActionDeltaCommit, ts1)
	completed := NewInstant(StateCompleted, ActionDeltaCommit, ts1)
	assert.Negative(t, requested.Compare(completed))
}

func TestSameLifecycle(t *testing.T) {
	assert.True(t, SameLifecycle(
		NewInstant(StateInflight, ActionCompaction, ts1),
		NewInstant(StateCompleted, ActionCommit, ts1)))
	assert.False(t, SameLifecycle(
		NewInstant(StateCompleted, ActionDeltaCommit, ts1),
		NewInstant(StateCompleted, ActionCommit, ts1)))
	assert.False(t, SameLifecycle(
		NewInstant(StateInflight, ActionCompaction, ts1),
		NewInstant(StateInflight, ActionCompaction, "20240101000000002")))
}
