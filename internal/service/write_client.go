package service

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/compaction"
	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/storage/diskmanager"
	"github.com/devrev/tablecore/internal/table"
	"github.com/devrev/tablecore/internal/timeline"
	"github.com/devrev/tablecore/internal/validation"
	"github.com/devrev/tablecore/internal/view"
)

// WriteResult describes one write cycle
type WriteResult struct {
	InstantTime string
	Metadata    *model.CommitMetadata
	// RecoveredCompactions were pending before the write and completed by it
	RecoveredCompactions []string
	// ScheduledCompaction is the compaction requested after the write, if any
	ScheduledCompaction string
	// CompactedInline reports whether ScheduledCompaction was also executed
	CompactedInline bool
}

// WriteClient runs write cycles against one table. Every operation that transitions
// instants holds the client's sequencing lock, so transitions are totally ordered:
// recovery of pending compactions, the delta commit, scheduling, inline execution.
type WriteClient struct {
	table     *table.Table
	scheduler *compaction.Scheduler
	executor  *compaction.Executor
	validator *validation.Validator
	disk      *diskmanager.DiskManager
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewWriteClient creates a write client; disk may be nil to disable write admission
func NewWriteClient(t *table.Table, disk *diskmanager.DiskManager) *WriteClient {
	cfg := t.Config().Write
	return &WriteClient{
		table:     t,
		scheduler: compaction.NewScheduler(t),
		executor:  compaction.NewExecutor(t),
		validator: validation.NewValidatorWithLimits(cfg.MaxRecordKeySize, cfg.MaxValueSize),
		disk:      disk,
		logger:    t.Logger(),
	}
}

// Table returns the table the client writes to
func (c *WriteClient) Table() *table.Table { return c.table }

// Write upserts records in one delta commit
func (c *WriteClient) Write(ctx context.Context, records []model.Record) (*WriteResult, error) {
	return c.write(ctx, records, model.OperationUpsert)
}

// Delete removes keys in one delta commit. Only Key and PartitionPath of each record are used.
func (c *WriteClient) Delete(ctx context.Context, keys []model.Record) (*WriteResult, error) {
	tombstones := make([]model.Record, len(keys))
	for i, k := range keys {
		tombstones[i] = model.Record{Key: k.Key, PartitionPath: k.PartitionPath, IsTombstone: true}
	}
	return c.write(ctx, tombstones, model.OperationDelete)
}

func (c *WriteClient) write(ctx context.Context, records []model.Record, operation string) (*WriteResult, error) {
	if err := c.validator.ValidateBatch(records); err != nil {
		return nil, err
	}
	if c.disk != nil {
		if err := c.disk.CheckBeforeWrite(validation.EstimateWriteSize(records)); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result, err := c.writeCycle(ctx, records, operation)
	status := "success"
	var written int
	var logBytes int64
	if err != nil {
		status = "error"
	}
	if result != nil && result.Metadata != nil {
		written = int(result.Metadata.TotalRecordsWritten())
		logBytes = result.Metadata.TotalBytesWritten()
	}
	c.table.Metrics().RecordDeltaCommit(status, time.Since(start).Seconds(), written, logBytes)
	return result, err
}

func (c *WriteClient) writeCycle(ctx context.Context, records []model.Record, operation string) (*WriteResult, error) {
	cfg := c.table.Config().Compaction
	result := &WriteResult{}

	// pending compactions complete before this cycle can schedule a newer one
	if cfg.Inline || cfg.ScheduleInline {
		recovered, err := c.executor.RunPending(ctx)
		result.RecoveredCompactions = recovered
		if err != nil {
			return result, err
		}
	}

	instantTime := c.table.NewInstantTime()
	result.InstantTime = instantTime
	logger := c.logger.With(zap.String("instant_time", instantTime))

	requested, err := c.table.CreateRequested(ctx, model.ActionDeltaCommit, instantTime, nil)
	if err != nil {
		return result, fmt.Errorf("failed to request delta commit: %w", err)
	}
	inflight, err := c.table.Transition(ctx, requested, model.StateInflight, nil)
	if err != nil {
		return result, fmt.Errorf("failed to start delta commit: %w", err)
	}

	md, err := c.writeLogFiles(ctx, instantTime, records, operation)
	if err != nil {
		// the delta commit stays inflight; its log blocks are never merged
		logger.Error("Delta commit failed", zap.Error(err))
		return result, err
	}
	content, err := timeline.EncodeCommitMetadata(md)
	if err != nil {
		return result, err
	}
	if _, err := c.table.Transition(ctx, inflight, model.StateCompleted, content); err != nil {
		return result, fmt.Errorf("failed to complete delta commit: %w", err)
	}
	result.Metadata = md
	logger.Info("Delta commit completed",
		zap.String("operation", operation),
		zap.Int("files", len(md.WriteStats)),
		zap.Int64("records", md.TotalRecordsWritten()))

	if !cfg.Inline && !cfg.ScheduleInline {
		return result, nil
	}
	plan, err := c.scheduler.Schedule(ctx)
	if err != nil {
		if tcerrors.IsCode(err, tcerrors.ErrCodePreconditionFailed) {
			logger.Debug("Compaction not scheduled", zap.Error(err))
			return result, nil
		}
		return result, fmt.Errorf("delta commit %s completed but scheduling failed: %w", instantTime, err)
	}
	if plan == nil {
		return result, nil
	}
	result.ScheduledCompaction = plan.InstantTime
	if !cfg.Inline {
		return result, nil
	}
	if _, err := c.executor.Execute(ctx, plan.InstantTime); err != nil {
		return result, fmt.Errorf("delta commit %s completed but inline compaction failed: %w", instantTime, err)
	}
	result.CompactedInline = true
	return result, nil
}

// routedGroup collects the entries one delta commit appends to a file group
type routedGroup struct {
	id      model.FileGroupID
	entries []model.RecordEntry
	index   map[string]int
	deletes int64
}

// BucketFor returns the bucket a record key is routed to
func BucketFor(key string, buckets int) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(buckets))
}

func (c *WriteClient) route(instantTime string, records []model.Record) []*routedGroup {
	buckets := c.table.BucketsPerPartition()
	groups := make(map[model.FileGroupID]*routedGroup)
	for _, r := range records {
		id := model.FileGroupID{
			PartitionPath: r.PartitionPath,
			FileID:        model.FileIDForBucket(r.PartitionPath, BucketFor(r.Key, buckets)),
		}
		g, ok := groups[id]
		if !ok {
			g = &routedGroup{id: id, index: make(map[string]int)}
			groups[id] = g
		}
		entry := model.RecordEntry{Key: r.Key, Value: r.Value, InstantTime: instantTime, IsTombstone: r.IsTombstone}
		// the last record for a key within one write wins
		if i, seen := g.index[r.Key]; seen {
			g.entries[i] = entry
			continue
		}
		g.index[r.Key] = len(g.entries)
		g.entries = append(g.entries, entry)
	}

	out := make([]*routedGroup, 0, len(groups))
	for _, g := range groups {
		for _, e := range g.entries {
			if e.IsTombstone {
				g.deletes++
			}
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// writeLogFiles appends one log version per touched file group. Logs target the latest
// slice readers can see, which is the slice of a pending compaction when one exists; a
// group without one is rooted at the delta commit itself. Slices rooted at a failed delta
// commit are never targeted.
func (c *WriteClient) writeLogFiles(ctx context.Context, instantTime string, records []model.Record, operation string) (*model.CommitMetadata, error) {
	tl, err := c.table.LoadTimeline(ctx)
	if err != nil {
		return nil, err
	}
	v, err := c.table.BuildView(ctx, tl.FilterCompletedAndCompactions(), storage.AllPartitions)
	if err != nil {
		return nil, err
	}

	md := &model.CommitMetadata{OperationType: operation}
	for _, g := range c.route(instantTime, records) {
		baseInstant, version := nextLogVersion(v, g.id, instantTime)
		block := &model.LogBlock{InstantTime: instantTime, Entries: g.entries}
		data, err := storage.EncodeLogBlock(block)
		if err != nil {
			return nil, err
		}
		logPath := path.Join(g.id.PartitionPath,
			model.LogFileName(g.id.FileID, baseInstant, version, model.NewWriteToken()))
		if err := c.table.Storage().WriteFile(ctx, logPath, data); err != nil {
			return nil, tcerrors.DurableWriteFailed("failed to write log file "+logPath, err)
		}
		md.WriteStats = append(md.WriteStats, model.WriteStat{
			PartitionPath: g.id.PartitionPath,
			FileID:        g.id.FileID,
			Path:          logPath,
			PrevBaseTime:  baseInstant,
			NumWrites:     int64(len(g.entries)) - g.deletes,
			NumDeletes:    g.deletes,
			FileSize:      int64(len(data)),
		})
	}
	return md, nil
}

func nextLogVersion(v *view.View, id model.FileGroupID, instantTime string) (string, int) {
	g, ok := v.FileGroup(id)
	if !ok {
		return instantTime, 1
	}
	slice, ok := g.LatestSlice()
	if !ok {
		return instantTime, 1
	}
	version := 0
	for _, lf := range slice.LogFiles {
		if lf.DeltaCommitTime == slice.BaseInstantTime && lf.Version > version {
			version = lf.Version
		}
	}
	return slice.BaseInstantTime, version + 1
}

// ScheduleCompaction evaluates the trigger policy, or bypasses it when force is set
func (c *WriteClient) ScheduleCompaction(ctx context.Context, force bool) (*model.CompactionPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if force {
		return c.scheduler.ForceSchedule(ctx)
	}
	return c.scheduler.Schedule(ctx)
}

// Compact executes or resumes one pending compaction
func (c *WriteClient) Compact(ctx context.Context, instantTime string) (*model.CommitMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executor.Execute(ctx, instantTime)
}

// RunPendingCompactions completes every pending compaction in instant order
func (c *WriteClient) RunPendingCompactions(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executor.RunPending(ctx)
}

// CancelCompaction removes a requested compaction that has not started
func (c *WriteClient) CancelCompaction(ctx context.Context, instantTime string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.RemoveRequested(ctx, instantTime)
}
