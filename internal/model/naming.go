package model

import (
	"fmt"
	"path"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

const (
	// BaseFileExtension is the suffix of every base file
	BaseFileExtension = ".base"
	// LogFileExtension separates the log file id/base instant from its version
	LogFileExtension = ".log"
)

var (
	// <fileId>_<writeToken>_<instantTime>.base
	baseFilePattern = regexp.MustCompile(`^([^._]+)_([^._]+)_(\d{17})\.base$`)
	// .<fileId>_<deltaCommitTime>.log.<version>_<writeToken>
	logFilePattern = regexp.MustCompile(`^\.([^._]+)_(\d{17})\.log\.(\d+)_([^._]+)$`)
)

// FileKind distinguishes base files from log files
type FileKind string

const (
	FileKindBase FileKind = "base"
	FileKindLog  FileKind = "log"
)

// DataFileName is the parsed form of a data file name
type DataFileName struct {
	Kind        FileKind
	FileID      string
	InstantTime string
	Version     int
	WriteToken  string
}

// NewWriteToken returns a fresh token distinguishing concurrent attempts writing the same file
func NewWriteToken() string {
	return uuid.NewString()[:8]
}

// BaseFileName builds the name of a base file
func BaseFileName(fileID, writeToken, instantTime string) string {
	return fmt.Sprintf("%s_%s_%s%s", fileID, writeToken, instantTime, BaseFileExtension)
}

// LogFileName builds the name of a log file targeting the slice rooted at baseInstant
func LogFileName(fileID, baseInstant string, version int, writeToken string) string {
	return fmt.Sprintf(".%s_%s%s.%d_%s", fileID, baseInstant, LogFileExtension, version, writeToken)
}

// ParseDataFileName parses the last element of p into its naming components
func ParseDataFileName(p string) (DataFileName, error) {
	name := path.Base(p)
	if m := baseFilePattern.FindStringSubmatch(name); m != nil {
		return DataFileName{Kind: FileKindBase, FileID: m[1], WriteToken: m[2], InstantTime: m[3]}, nil
	}
	if m := logFilePattern.FindStringSubmatch(name); m != nil {
		version, err := strconv.Atoi(m[3])
		if err != nil {
			return DataFileName{}, fmt.Errorf("invalid log version in %q: %w", name, err)
		}
		return DataFileName{Kind: FileKindLog, FileID: m[1], InstantTime: m[2], Version: version, WriteToken: m[4]}, nil
	}
	return DataFileName{}, fmt.Errorf("unrecognized data file name %q", name)
}

// FileIDForBucket derives a stable file id for a bucket of a partition, so that every
// writer routes a key to the same file group without shared state
func FileIDForBucket(partitionPath string, bucket int) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", partitionPath, bucket)))
	// the naming convention reserves '_' and '.', uuid text only uses '-'
	return id.String()
}
