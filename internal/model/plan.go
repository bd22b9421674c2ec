package model

// CompactionOperation targets one file slice of a compaction plan
type CompactionOperation struct {
	PartitionPath   string
	FileID          string
	BaseInstantTime string
	BaseFilePath    string // empty for a base-less slice
	LogFilePaths    []string
	TotalLogBytes   int64
}

// GroupID returns the file group the operation compacts
func (op CompactionOperation) GroupID() FileGroupID {
	return FileGroupID{PartitionPath: op.PartitionPath, FileID: op.FileID}
}

// CompactionPlan is the deferred work attached to a requested compaction instant
type CompactionPlan struct {
	InstantTime string
	Strategy    string
	Operations  []CompactionOperation
}

// TotalLogBytes sums the log bytes of every operation
func (p *CompactionPlan) TotalLogBytes() int64 {
	var total int64
	for _, op := range p.Operations {
		total += op.TotalLogBytes
	}
	return total
}

// CompactionStatus indicates the progress of a compaction job run by the async service
type CompactionStatus string

const (
	CompactionStatusPending   CompactionStatus = "pending"
	CompactionStatusRunning   CompactionStatus = "running"
	CompactionStatusCompleted CompactionStatus = "completed"
	CompactionStatusFailed    CompactionStatus = "failed"
)
