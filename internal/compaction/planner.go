package compaction

import (
	"sort"

	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/view"
)

// Plan strategies recorded in compaction plans
const (
	StrategyLogFileSize = "log_file_size"
	StrategyBoundedIO   = "bounded_io"
)

// BuildPlan selects the latest slice of every file group that holds log files and is not
// already targeted by a pending compaction. Operations are ordered by log bytes, largest
// first; with targetIOBytes > 0 selection stops once the target is reached.
func BuildPlan(v *view.View, instantTime string, targetIOBytes int64) *model.CompactionPlan {
	plan := &model.CompactionPlan{InstantTime: instantTime, Strategy: StrategyLogFileSize}
	if targetIOBytes > 0 {
		plan.Strategy = StrategyBoundedIO
	}

	var ops []model.CompactionOperation
	for _, g := range v.AllFileGroups() {
		if _, pending := v.PendingCompactionInstant(g.ID); pending {
			continue
		}
		slice, ok := g.LatestSlice()
		if !ok || len(slice.LogFiles) == 0 {
			continue
		}
		op := model.CompactionOperation{
			PartitionPath:   g.ID.PartitionPath,
			FileID:          g.ID.FileID,
			BaseInstantTime: slice.BaseInstantTime,
			TotalLogBytes:   model.TotalLogSize(slice.LogFiles),
		}
		if slice.BaseFile != nil {
			op.BaseFilePath = slice.BaseFile.Path
		}
		for _, lf := range slice.LogFiles {
			op.LogFilePaths = append(op.LogFilePaths, lf.Path)
		}
		ops = append(ops, op)
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].TotalLogBytes != ops[j].TotalLogBytes {
			return ops[i].TotalLogBytes > ops[j].TotalLogBytes
		}
		return ops[i].GroupID().String() < ops[j].GroupID().String()
	})

	if targetIOBytes <= 0 {
		plan.Operations = ops
		return plan
	}
	remaining := targetIOBytes
	for _, op := range ops {
		plan.Operations = append(plan.Operations, op)
		remaining -= op.TotalLogBytes
		if remaining <= 0 {
			break
		}
	}
	return plan
}
