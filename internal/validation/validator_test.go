package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

func TestValidatePartitionPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple", "p1", false},
		{"nested", "2024/01/01", false},
		{"empty", "", true},
		{"absolute", "/p1", true},
		{"unclean", "a//b", true},
		{"parent", "../p1", true},
		{"hidden", "a/.hidden", true},
		{"meta folder", ".timeline", true},
		{"glob", "a/*", true},
		{"control", "a\x00b", true},
		{"too long", strings.Repeat("a", MaxPartitionPathSize+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePartitionPath(tt.path)
			if tt.wantErr {
				assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeInvalidArgument))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_Record(t *testing.T) {
	v := NewValidatorWithLimits(8, 4)

	assert.NoError(t, v.ValidateRecord(model.Record{Key: "k1", PartitionPath: "p1", Value: []byte("abcd")}))
	assert.NoError(t, v.ValidateRecord(model.Record{Key: "k1", PartitionPath: "p1", IsTombstone: true}))
	assert.Error(t, v.ValidateRecord(model.Record{Key: "", PartitionPath: "p1"}))
	assert.Error(t, v.ValidateRecord(model.Record{Key: "123456789", PartitionPath: "p1"}))
	assert.Error(t, v.ValidateRecord(model.Record{Key: "k\x01", PartitionPath: "p1"}))
	assert.Error(t, v.ValidateRecord(model.Record{Key: "k1", PartitionPath: "p1", Value: []byte("abcde")}))
}

func TestValidator_Batch(t *testing.T) {
	v := NewValidator()
	assert.Error(t, v.ValidateBatch(nil))
	assert.NoError(t, v.ValidateBatch([]model.Record{{Key: "k", PartitionPath: "p"}}))
	assert.Error(t, v.ValidateBatch([]model.Record{{Key: "k", PartitionPath: "p"}, {Key: "k"}}))
}

func TestEstimateWriteSize(t *testing.T) {
	size := EstimateWriteSize([]model.Record{{Key: "key", Value: make([]byte, 65)}})
	assert.Equal(t, uint64(120), size)
}
