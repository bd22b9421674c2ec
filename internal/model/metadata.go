package model

// WriteStat describes one data file produced by a commit
type WriteStat struct {
	PartitionPath string `json:"partition_path"`
	FileID        string `json:"file_id"`
	Path          string `json:"path"`
	PrevBaseTime  string `json:"prev_base_instant,omitempty"`
	NumWrites     int64  `json:"num_writes"`
	NumDeletes    int64  `json:"num_deletes"`
	FileSize      int64  `json:"file_size_bytes"`
}

// CommitMetadata is stored with every completed write or compaction instant
type CommitMetadata struct {
	OperationType string            `json:"operation_type"`
	Compacted     bool              `json:"compacted"`
	WriteStats    []WriteStat       `json:"write_stats"`
	Extra         map[string]string `json:"extra_metadata,omitempty"`
}

// TotalRecordsWritten sums writes across all stats
func (m *CommitMetadata) TotalRecordsWritten() int64 {
	var n int64
	for _, ws := range m.WriteStats {
		n += ws.NumWrites
	}
	return n
}

// TotalBytesWritten sums file sizes across all stats
func (m *CommitMetadata) TotalBytesWritten() int64 {
	var n int64
	for _, ws := range m.WriteStats {
		n += ws.FileSize
	}
	return n
}

// Paths returns the written file paths in stat order
func (m *CommitMetadata) Paths() []string {
	paths := make([]string, 0, len(m.WriteStats))
	for _, ws := range m.WriteStats {
		paths = append(paths, ws.Path)
	}
	return paths
}

const (
	OperationUpsert  = "upsert"
	OperationDelete  = "delete"
	OperationCompact = "compact"
)
