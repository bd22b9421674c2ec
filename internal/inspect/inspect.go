// Package inspect renders read-only diagnostics of a table's timeline and file-system view.
package inspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/table"
	"github.com/devrev/tablecore/internal/timeline"
	"github.com/devrev/tablecore/internal/view"
)

// ViewOptions select the timeline and files a view listing is built from
type ViewOptions struct {
	// PathGlob matches partition paths; empty means every partition
	PathGlob          string
	BaseFileOnly      bool
	MaxInstant        string
	IncludeMax        bool
	IncludeInflight   bool
	ExcludeCompaction bool
	// Merge folds a pending compaction's slice into the previous one (latest listing only)
	Merge bool
	PrintOptions
}

// SelectTimeline narrows the full timeline the way a view listing sees it. Pending
// compactions stay visible unless inflight instants are requested explicitly, since readers
// must hide base files of compactions that have not completed.
func SelectTimeline(tl *timeline.Timeline, opts ViewOptions) *timeline.Timeline {
	switch {
	case opts.BaseFileOnly:
		tl = tl.FilterCommitAndReplace()
	case opts.ExcludeCompaction:
		tl = tl.FilterWriteActions()
	default:
		tl = tl.FilterWriteAndCompaction()
	}
	if !opts.IncludeInflight {
		tl = tl.Filter(func(in model.Instant) bool {
			return in.IsCompleted() || in.Action == model.ActionCompaction
		})
	}
	if opts.MaxInstant != "" {
		keep := timeline.GreaterThan
		if opts.IncludeMax {
			keep = timeline.GreaterThanOrEquals
		}
		tl = tl.Filter(func(in model.Instant) bool { return keep(opts.MaxInstant, in.Timestamp) })
	}
	return tl
}

func buildView(ctx context.Context, t *table.Table, opts ViewOptions) (*view.View, *timeline.Timeline, error) {
	full, err := t.LoadTimeline(ctx)
	if err != nil {
		return nil, nil, err
	}
	glob := opts.PathGlob
	if glob == "" {
		glob = storage.AllPartitions
	}
	v, err := t.BuildView(ctx, SelectTimeline(full, opts), glob)
	if err != nil {
		return nil, nil, err
	}
	return v, full, nil
}

func baseColumns() []Column {
	return []Column{
		{"Partition", KindText},
		{"FileId", KindText},
		{"BaseInstant", KindText},
		{"BaseFile", KindText},
		{"BaseFileSize", KindBytes},
	}
}

func baseCells(s model.FileSlice) []interface{} {
	baseFile := ""
	if s.BaseFile != nil {
		baseFile = s.BaseFile.Path
	}
	return []interface{}{s.PartitionPath(), s.FileID(), s.BaseInstantTime, baseFile, s.BaseFileSize()}
}

func logNames(logs []model.LogFile) string {
	names := make([]string, len(logs))
	for i, lf := range logs {
		names[i] = lf.Path
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// ShowAll lists every slice of every file group
func ShowAll(ctx context.Context, t *table.Table, opts ViewOptions) (*Result, error) {
	v, _, err := buildView(ctx, t, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: baseColumns()}
	if !opts.BaseFileOnly {
		res.Columns = append(res.Columns,
			Column{"NumLogFiles", KindCount},
			Column{"TotalLogSize", KindBytes},
			Column{"LogFiles", KindText})
	}
	for _, g := range v.AllFileGroups() {
		for _, s := range g.Slices {
			row := baseCells(s)
			if !opts.BaseFileOnly {
				row = append(row, int64(len(s.LogFiles)), model.TotalLogSize(s.LogFiles), logNames(s.LogFiles))
			}
			res.Rows = append(res.Rows, row)
		}
	}
	if err := res.Apply(opts.PrintOptions); err != nil {
		return nil, err
	}
	return res, nil
}

func ratio(logBytes, baseBytes int64) float64 {
	if baseBytes <= 0 {
		return -1
	}
	return float64(logBytes) / float64(baseBytes)
}

// ShowLatest lists the latest slice of every file group. In merge mode the bound defaults
// to the last completed or compaction instant.
func ShowLatest(ctx context.Context, t *table.Table, opts ViewOptions) (*Result, error) {
	v, full, err := buildView(ctx, t, opts)
	if err != nil {
		return nil, err
	}
	maxInstant := opts.MaxInstant
	if opts.Merge && maxInstant == "" {
		if last, ok := full.FilterCompletedAndCompactions().LastInstant(); ok {
			maxInstant = last.Timestamp
		}
	}

	res := &Result{Columns: baseColumns()}
	if !opts.BaseFileOnly {
		res.Columns = append(res.Columns,
			Column{"NumLogFiles", KindCount},
			Column{"TotalLogSize", KindBytes},
			Column{"LogSizeScheduled", KindBytes},
			Column{"LogSizeUnscheduled", KindBytes},
			Column{"LogToBaseScheduled", KindRatio},
			Column{"LogToBaseUnscheduled", KindRatio},
			Column{"LogFilesScheduled", KindText},
			Column{"LogFilesUnscheduled", KindText})
	}

	for _, partition := range v.Partitions() {
		var slices []model.FileSlice
		switch {
		case !opts.Merge:
			slices = v.LatestFileSlices(partition)
		case maxInstant != "":
			slices = v.LatestMergedFileSlicesBeforeOrOn(partition, maxInstant)
		}
		for _, s := range slices {
			row := baseCells(s)
			if !opts.BaseFileOnly {
				scheduled, unscheduled := s.ScheduledLogFiles(), s.UnscheduledLogFiles()
				scheduledSize, unscheduledSize := model.TotalLogSize(scheduled), model.TotalLogSize(unscheduled)
				row = append(row,
					int64(len(s.LogFiles)),
					model.TotalLogSize(s.LogFiles),
					scheduledSize,
					unscheduledSize,
					ratio(scheduledSize, s.BaseFileSize()),
					ratio(unscheduledSize, s.BaseFileSize()),
					logNames(scheduled),
					logNames(unscheduled))
			}
			res.Rows = append(res.Rows, row)
		}
	}
	if err := res.Apply(opts.PrintOptions); err != nil {
		return nil, err
	}
	return res, nil
}

// TimelineOptions select the instants listed by ShowTimeline
type TimelineOptions struct {
	// All lists every instant; otherwise only completed instants and pending compactions
	All bool
	PrintOptions
}

// ShowTimeline lists instants with a summary of their commit metadata
func ShowTimeline(ctx context.Context, t *table.Table, opts TimelineOptions) (*Result, error) {
	tl, err := t.LoadTimeline(ctx)
	if err != nil {
		return nil, err
	}
	if !opts.All {
		tl = tl.FilterCompletedAndCompactions()
	}
	res := &Result{Columns: []Column{
		{"Instant", KindText},
		{"Action", KindText},
		{"State", KindText},
		{"Operation", KindText},
		{"Files", KindCount},
		{"Records", KindCount},
		{"Deletes", KindCount},
		{"BytesWritten", KindBytes},
	}}
	for in := range tl.Instants() {
		row := []interface{}{in.Timestamp, string(in.Action), string(in.State), "", int64(0), int64(0), int64(0), int64(0)}
		switch {
		case in.IsCompleted():
			md, err := t.ReadCommitMetadata(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("failed to read metadata of %s: %w", in, err)
			}
			var deletes int64
			for _, ws := range md.WriteStats {
				deletes += ws.NumDeletes
			}
			row[3], row[4], row[5], row[6], row[7] = md.OperationType, int64(len(md.WriteStats)),
				md.TotalRecordsWritten(), deletes, md.TotalBytesWritten()
		case in.Action == model.ActionCompaction:
			plan, err := t.ReadCompactionPlan(ctx, in.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("failed to read plan of %s: %w", in, err)
			}
			row[3], row[4] = plan.Strategy, int64(len(plan.Operations))
		}
		res.Rows = append(res.Rows, row)
	}
	if err := res.Apply(opts.PrintOptions); err != nil {
		return nil, err
	}
	return res, nil
}

// ShowPendingCompactions lists requested and inflight compactions with the size of their plans
func ShowPendingCompactions(ctx context.Context, t *table.Table, opts PrintOptions) (*Result, error) {
	tl, err := t.LoadTimeline(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: []Column{
		{"Instant", KindText},
		{"State", KindText},
		{"Strategy", KindText},
		{"Operations", KindCount},
		{"LogFiles", KindCount},
		{"LogBytes", KindBytes},
	}}
	for in := range tl.FilterPendingCompactions().Instants() {
		plan, err := t.ReadCompactionPlan(ctx, in.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to read plan of %s: %w", in, err)
		}
		var logFiles int64
		for _, op := range plan.Operations {
			logFiles += int64(len(op.LogFilePaths))
		}
		res.Rows = append(res.Rows, []interface{}{
			in.Timestamp, string(in.State), plan.Strategy, int64(len(plan.Operations)), logFiles, plan.TotalLogBytes(),
		})
	}
	if err := res.Apply(opts); err != nil {
		return nil, err
	}
	return res, nil
}
