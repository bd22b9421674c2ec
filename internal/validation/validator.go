package validation

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
)

const (
	// Size limits
	MaxKeySize           = 1024             // 1 KB
	MaxValueSize         = 10 * 1024 * 1024 // 10 MB
	MaxPartitionPathSize = 512
	MaxRecordsPerWrite   = 1_000_000
)

// Validator validates records before they are written
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{maxKeySize: MaxKeySize, maxValueSize: MaxValueSize}
}

// NewValidatorWithLimits creates a validator with custom limits; non-positive values keep the defaults
func NewValidatorWithLimits(maxKeySize, maxValueSize int) *Validator {
	v := NewValidator()
	if maxKeySize > 0 {
		v.maxKeySize = maxKeySize
	}
	if maxValueSize > 0 {
		v.maxValueSize = maxValueSize
	}
	return v
}

// ValidateBatch validates every record of one write
func (v *Validator) ValidateBatch(records []model.Record) error {
	if len(records) == 0 {
		return tcerrors.InvalidArgument("write contains no records", nil)
	}
	if len(records) > MaxRecordsPerWrite {
		return tcerrors.InvalidArgument(
			fmt.Sprintf("write contains %d records, limit is %d", len(records), MaxRecordsPerWrite), nil)
	}
	for i := range records {
		if err := v.ValidateRecord(records[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRecord validates a single record
func (v *Validator) ValidateRecord(r model.Record) error {
	if err := ValidatePartitionPath(r.PartitionPath); err != nil {
		return err
	}
	if err := v.ValidateKey(r.Key); err != nil {
		return err
	}
	return v.ValidateValue(r.Value)
}

// ValidatePartitionPath validates a relative, slash separated partition path
func ValidatePartitionPath(p string) error {
	if p == "" {
		return tcerrors.InvalidArgument("partition path cannot be empty", nil)
	}
	if len(p) > MaxPartitionPathSize {
		return tcerrors.InvalidArgument(
			fmt.Sprintf("partition path exceeds maximum size of %d bytes", MaxPartitionPathSize), nil)
	}
	if strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return tcerrors.InvalidArgument(fmt.Sprintf("partition path %q must be relative and clean", p), nil)
	}
	for _, segment := range strings.Split(p, "/") {
		// dot segments are reserved for the meta folder and hidden log files
		if segment == ".." || strings.HasPrefix(segment, ".") {
			return tcerrors.InvalidArgument(fmt.Sprintf("partition path %q contains a reserved segment", p), nil)
		}
	}
	if p == storage.MetaFolderName || strings.ContainsAny(p, "*?[]{}\\") {
		return tcerrors.InvalidArgument(fmt.Sprintf("partition path %q contains reserved characters", p), nil)
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return tcerrors.InvalidArgument("partition path cannot contain control characters", nil)
		}
	}
	return nil
}

// ValidateKey validates a record key
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return tcerrors.InvalidArgument("record key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return tcerrors.InvalidArgument(
			fmt.Sprintf("record key exceeds maximum size of %d bytes", v.maxKeySize), nil).
			WithDetail("size", len(key))
	}
	// null bytes are control characters too
	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return tcerrors.InvalidArgument("record key cannot contain control characters", nil)
		}
	}
	return nil
}

// ValidateValue validates a record payload; tombstones carry none
func (v *Validator) ValidateValue(value []byte) error {
	if len(value) > v.maxValueSize {
		return tcerrors.InvalidArgument(
			fmt.Sprintf("value exceeds maximum size of %d bytes", v.maxValueSize), nil).
			WithDetail("size", len(value))
	}
	return nil
}

// EstimateWriteSize estimates the bytes a batch adds to log files, used for disk admission
func EstimateWriteSize(records []model.Record) uint64 {
	var total int
	for i := range records {
		// entry framing and the instant time stamped on every entry
		total += len(records[i].Key) + len(records[i].Value) + 32
	}
	// 20% safety margin
	return uint64(total) + uint64(total)/5
}
