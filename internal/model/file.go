package model

import (
	"fmt"
	"sort"
)

// FileGroupID identifies all versions of one logical data file
type FileGroupID struct {
	PartitionPath string
	FileID        string
}

func (id FileGroupID) String() string {
	return fmt.Sprintf("%s/%s", id.PartitionPath, id.FileID)
}

// BaseFile is a fully merged data file written at InstantTime
type BaseFile struct {
	FileID      string
	InstantTime string
	WriteToken  string
	Path        string // relative to the table base path
	Size        int64
}

// LogFile is an appended delta file. DeltaCommitTime is the base instant of the
// slice the file was written against, not the time of the write itself.
type LogFile struct {
	FileID          string
	DeltaCommitTime string
	Version         int
	WriteToken      string
	Path            string
	Size            int64
}

func (l LogFile) String() string {
	return fmt.Sprintf("LogFile{path=%s, size=%d}", l.Path, l.Size)
}

// SortLogFiles orders log files by base instant, version and write token
func SortLogFiles(logs []LogFile) {
	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		if a.DeltaCommitTime != b.DeltaCommitTime {
			return a.DeltaCommitTime < b.DeltaCommitTime
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.WriteToken < b.WriteToken
	})
}

// FileSlice is one version of a file group rooted at BaseInstantTime
type FileSlice struct {
	GroupID         FileGroupID
	BaseInstantTime string
	BaseFile        *BaseFile
	LogFiles        []LogFile
}

func (s FileSlice) FileID() string        { return s.GroupID.FileID }
func (s FileSlice) PartitionPath() string { return s.GroupID.PartitionPath }
func (s FileSlice) HasBaseFile() bool     { return s.BaseFile != nil }

// IsEmpty reports whether the slice holds no data files yet
func (s FileSlice) IsEmpty() bool {
	return s.BaseFile == nil && len(s.LogFiles) == 0
}

// BaseFileSize returns the base file size or -1 when the slice has none
func (s FileSlice) BaseFileSize() int64 {
	if s.BaseFile == nil {
		return -1
	}
	return s.BaseFile.Size
}

// ScheduledLogFiles returns log files targeting the slice's own base instant
func (s FileSlice) ScheduledLogFiles() []LogFile {
	var out []LogFile
	for _, lf := range s.LogFiles {
		if lf.DeltaCommitTime == s.BaseInstantTime {
			out = append(out, lf)
		}
	}
	return out
}

// UnscheduledLogFiles returns log files written against a later base instant,
// i.e. after a pending compaction of this slice was requested
func (s FileSlice) UnscheduledLogFiles() []LogFile {
	var out []LogFile
	for _, lf := range s.LogFiles {
		if lf.DeltaCommitTime != s.BaseInstantTime {
			out = append(out, lf)
		}
	}
	return out
}

// TotalLogSize sums the sizes of the given log files
func TotalLogSize(logs []LogFile) int64 {
	var total int64
	for _, lf := range logs {
		total += lf.Size
	}
	return total
}

// FileGroup owns the slices of one file id, ordered by base instant
type FileGroup struct {
	ID     FileGroupID
	Slices []FileSlice
}

// LatestSlice returns the slice with the greatest base instant
func (g *FileGroup) LatestSlice() (FileSlice, bool) {
	if len(g.Slices) == 0 {
		return FileSlice{}, false
	}
	return g.Slices[len(g.Slices)-1], true
}

// LatestSliceBeforeOrOn returns the latest slice whose base instant is <= maxInstant,
// together with its index in Slices
func (g *FileGroup) LatestSliceBeforeOrOn(maxInstant string) (FileSlice, int, bool) {
	for i := len(g.Slices) - 1; i >= 0; i-- {
		if g.Slices[i].BaseInstantTime <= maxInstant {
			return g.Slices[i], i, true
		}
	}
	return FileSlice{}, -1, false
}
