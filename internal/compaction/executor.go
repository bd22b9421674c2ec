package compaction

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/table"
	"github.com/devrev/tablecore/internal/timeline"
)

// Executor drives requested compactions through inflight to a completed commit
type Executor struct {
	table       *table.Table
	parallelism int
	logger      *zap.Logger
}

// NewExecutor creates an executor using the table's compaction parallelism
func NewExecutor(t *table.Table) *Executor {
	parallelism := t.Config().Compaction.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Executor{table: t, parallelism: parallelism, logger: t.Logger()}
}

// operationResult is the output of merging one file slice
type operationResult struct {
	stat      model.WriteStat
	bytesRead int64
}

// Execute completes the compaction requested at instantTime. A requested compaction is
// started; an inflight one left behind by a crashed attempt is resumed after its partial
// outputs are discarded. Merging is deterministic per (fileId, baseInstantTime), so a
// resumed attempt produces the same records.
func (e *Executor) Execute(ctx context.Context, instantTime string) (*model.CommitMetadata, error) {
	start := time.Now()
	md, bytesRead, err := e.execute(ctx, instantTime)
	status := "success"
	if err != nil {
		status = "error"
	}
	var written int64
	if md != nil {
		written = md.TotalBytesWritten()
	}
	e.table.Metrics().RecordCompaction(status, time.Since(start).Seconds(), bytesRead, written)
	return md, err
}

func (e *Executor) execute(ctx context.Context, instantTime string) (*model.CommitMetadata, int64, error) {
	tl, err := e.table.LoadTimeline(ctx)
	if err != nil {
		return nil, 0, err
	}
	in, ok := tl.GetInstant(instantTime)
	if !ok {
		return nil, 0, tcerrors.InstantNotFound(instantTime)
	}
	if in.Action != model.ActionCompaction || in.IsCompleted() {
		return nil, 0, tcerrors.PreconditionFailed(fmt.Sprintf("instant %s is not a pending compaction", in))
	}
	plan, err := e.table.ReadCompactionPlan(ctx, instantTime)
	if err != nil {
		return nil, 0, err
	}

	logger := e.logger.With(zap.String("instant_time", instantTime))
	markers := e.table.Markers(instantTime)

	if in.IsRequested() {
		if in, err = e.table.Transition(ctx, in, model.StateInflight, nil); err != nil {
			return nil, 0, fmt.Errorf("failed to start compaction: %w", err)
		}
		logger.Info("Compaction started", zap.Int("operations", len(plan.Operations)))
	} else {
		discarded, err := e.discardPartialOutputs(ctx, markers)
		if err != nil {
			return nil, 0, err
		}
		e.table.Metrics().CompactionsRecoveredTotal.Inc()
		logger.Info("Resuming inflight compaction",
			zap.Int("operations", len(plan.Operations)),
			zap.Int("discarded_files", discarded))
	}

	committed := committedDeltaCommits(tl, instantTime)
	results := make([]operationResult, len(plan.Operations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, op := range plan.Operations {
		g.Go(func() error {
			res, err := e.compactOperation(gctx, instantTime, op, markers, committed)
			if err != nil {
				return fmt.Errorf("failed to compact %s: %w", op.GroupID(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// the instant stays inflight and is resumed by the next recovery pass
		logger.Error("Compaction failed", zap.Error(err))
		return nil, 0, err
	}

	md := &model.CommitMetadata{OperationType: model.OperationCompact, Compacted: true}
	var bytesRead int64
	for _, res := range results {
		md.WriteStats = append(md.WriteStats, res.stat)
		bytesRead += res.bytesRead
	}
	if err := e.finalize(ctx, in, md, markers); err != nil {
		return nil, bytesRead, err
	}
	logger.Info("Compaction completed",
		zap.Int("files", len(md.WriteStats)),
		zap.Int64("records", md.TotalRecordsWritten()),
		zap.Int64("bytes_read", bytesRead),
		zap.Int64("bytes_written", md.TotalBytesWritten()))
	return md, bytesRead, nil
}

// committedDeltaCommits returns the delta commits whose log blocks a compaction at
// instantTime may merge: completed and earlier than the compaction
func committedDeltaCommits(tl *timeline.Timeline, instantTime string) map[string]struct{} {
	out := make(map[string]struct{})
	for in := range tl.FilterDeltaCommits().FilterCompleted().InstantsInRange(instantTime, false) {
		out[in.Timestamp] = struct{}{}
	}
	return out
}

// discardPartialOutputs deletes the data files a crashed attempt marked, then its markers
func (e *Executor) discardPartialOutputs(ctx context.Context, markers *storage.Markers) (int, error) {
	paths, err := markers.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		if err := e.table.Storage().Delete(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to discard partial output %s: %w", p, err)
		}
	}
	if err := markers.Delete(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete markers: %w", err)
	}
	return len(paths), nil
}

func (e *Executor) compactOperation(ctx context.Context, instantTime string, op model.CompactionOperation,
	markers *storage.Markers, committed map[string]struct{}) (operationResult, error) {
	st := e.table.Storage()
	var res operationResult

	records := make(map[string]model.RecordEntry)
	if op.BaseFilePath != "" {
		data, err := st.ReadFile(ctx, op.BaseFilePath)
		if err != nil {
			return res, readErr(op.BaseFilePath, err)
		}
		base, err := storage.DecodeBaseBlock(data)
		if err != nil {
			return res, tcerrors.CorruptedMetadata("failed to decode base file "+op.BaseFilePath, err)
		}
		res.bytesRead += int64(len(data))
		for _, entry := range base.Entries {
			records[entry.Key] = entry
		}
	}

	var deletes int64
	for _, logPath := range op.LogFilePaths {
		data, err := st.ReadFile(ctx, logPath)
		if err != nil {
			return res, readErr(logPath, err)
		}
		block, err := storage.DecodeLogBlock(data)
		if err != nil {
			return res, tcerrors.CorruptedMetadata("failed to decode log file "+logPath, err)
		}
		res.bytesRead += int64(len(data))
		if _, ok := committed[block.InstantTime]; !ok {
			e.logger.Debug("Skipping log block of uncommitted write",
				zap.String("path", logPath),
				zap.String("block_instant", block.InstantTime))
			continue
		}
		for _, entry := range block.Entries {
			if entry.IsTombstone {
				if _, ok := records[entry.Key]; ok {
					delete(records, entry.Key)
					deletes++
				}
				continue
			}
			records[entry.Key] = entry
		}
	}

	out := &model.BaseBlock{InstantTime: instantTime, Entries: make([]model.RecordEntry, 0, len(records))}
	for _, entry := range records {
		out.Entries = append(out.Entries, entry)
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Key < out.Entries[j].Key })
	data, err := storage.EncodeBaseBlock(out)
	if err != nil {
		return res, err
	}

	outPath := path.Join(op.PartitionPath, model.BaseFileName(op.FileID, model.NewWriteToken(), instantTime))
	if err := markers.Create(ctx, outPath); err != nil {
		return res, err
	}
	if err := st.WriteFile(ctx, outPath, data); err != nil {
		return res, tcerrors.DurableWriteFailed("failed to write base file "+outPath, err)
	}

	res.stat = model.WriteStat{
		PartitionPath: op.PartitionPath,
		FileID:        op.FileID,
		Path:          outPath,
		PrevBaseTime:  op.BaseInstantTime,
		NumWrites:     int64(len(out.Entries)),
		NumDeletes:    deletes,
		FileSize:      int64(len(data)),
	}
	return res, nil
}

func readErr(p string, err error) error {
	if errors.Is(err, storage.ErrNotExist) {
		return tcerrors.CorruptedMetadata("compaction input is missing: "+p, err)
	}
	return tcerrors.Unavailable("failed to read "+p, err)
}

// finalize deletes marked outputs that are not part of the metadata, publishes the commit
// and removes the markers. Marker cleanup failures do not fail a completed compaction.
func (e *Executor) finalize(ctx context.Context, inflight model.Instant, md *model.CommitMetadata, markers *storage.Markers) error {
	marked, err := markers.List(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(md.WriteStats))
	for _, p := range md.Paths() {
		keep[p] = struct{}{}
	}
	for _, p := range marked {
		if _, ok := keep[p]; ok {
			continue
		}
		if err := e.table.Storage().Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete stale output %s: %w", p, err)
		}
	}

	content, err := timeline.EncodeCommitMetadata(md)
	if err != nil {
		return err
	}
	if _, err := e.table.Transition(ctx, inflight, model.StateCompleted, content); err != nil {
		return fmt.Errorf("failed to complete compaction: %w", err)
	}

	if err := markers.Delete(ctx); err != nil {
		e.logger.Warn("Failed to clean up compaction markers",
			zap.String("instant_time", inflight.Timestamp), zap.Error(err))
	}
	return nil
}
