package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataFileName(t *testing.T) {
	fileID := FileIDForBucket("2024/01/01", 3)

	t.Run("base", func(t *testing.T) {
		name := BaseFileName(fileID, "a1b2c3d4", ts1)
		parsed, err := ParseDataFileName("2024/01/01/" + name)
		require.NoError(t, err)
		assert.Equal(t, FileKindBase, parsed.Kind)
		assert.Equal(t, fileID, parsed.FileID)
		assert.Equal(t, ts1, parsed.InstantTime)
		assert.Equal(t, "a1b2c3d4", parsed.WriteToken)
	})

	t.Run("log", func(t *testing.T) {
		name := LogFileName(fileID, ts1, 4, "deadbeef")
		parsed, err := ParseDataFileName(name)
		require.NoError(t, err)
		assert.Equal(t, FileKindLog, parsed.Kind)
		assert.Equal(t, fileID, parsed.FileID)
		assert.Equal(t, ts1, parsed.InstantTime)
		assert.Equal(t, 4, parsed.Version)
		assert.Equal(t, "deadbeef", parsed.WriteToken)
	})

	t.Run("unrecognized", func(t *testing.T) {
		for _, name := range []string{"README.md", "abc_tok_123.base", ".abc_20240101000000001.log._tok", "abc.parquet"} {
			_, err := ParseDataFileName(name)
			assert.Error(t, err, name)
		}
	})
}

func TestFileIDForBucket_Deterministic(t *testing.T) {
	assert.Equal(t, FileIDForBucket("p1", 0), FileIDForBucket("p1", 0))
	assert.NotEqual(t, FileIDForBucket("p1", 0), FileIDForBucket("p1", 1))
	assert.NotEqual(t, FileIDForBucket("p1", 0), FileIDForBucket("p2", 0))
	assert.NotContains(t, FileIDForBucket("p1", 0), "_")
}

func TestNewWriteToken(t *testing.T) {
	tok := NewWriteToken()
	assert.Len(t, tok, 8)
	assert.NotContains(t, tok, "_")
	assert.NotContains(t, tok, ".")
}

func TestFileSlice_LogClassification(t *testing.T) {
	slice := FileSlice{
		BaseInstantTime: "20240101000000005",
		LogFiles: []LogFile{
			{DeltaCommitTime: "20240101000000005", Version: 1, Size: 10},
			{DeltaCommitTime: "20240101000000001", Version: 2, Size: 30},
		},
	}
	assert.Len(t, slice.ScheduledLogFiles(), 1)
	assert.Len(t, slice.UnscheduledLogFiles(), 1)
	assert.Equal(t, int64(40), TotalLogSize(slice.LogFiles))
	assert.Equal(t, int64(-1), slice.BaseFileSize())
}
