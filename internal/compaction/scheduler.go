package compaction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/table"
	"github.com/devrev/tablecore/internal/timeline"
)

func errPendingRequest(c Counters) error {
	return tcerrors.PreconditionFailed(fmt.Sprintf(
		"a compaction is already pending and only %d delta commits completed since it was requested",
		c.DeltaCommitsSinceLastRequest)).
		WithDetail("pending_compactions", c.PendingCompactions).
		WithDetail("delta_commits_since_last_request", c.DeltaCommitsSinceLastRequest)
}

// Scheduler evaluates the trigger policy and emits requested compaction instants
type Scheduler struct {
	table         *table.Table
	policy        TriggerPolicy
	targetIOBytes int64
	logger        *zap.Logger
}

// NewScheduler creates a scheduler using the table's compaction configuration
func NewScheduler(t *table.Table) *Scheduler {
	cfg := t.Config().Compaction
	return &Scheduler{
		table:         t,
		policy:        NewTriggerPolicy(cfg),
		targetIOBytes: cfg.TargetIOBytes,
		logger:        t.Logger(),
	}
}

// Policy returns the trigger policy in use
func (s *Scheduler) Policy() TriggerPolicy { return s.policy }

// Schedule requests a compaction when the trigger policy fires. It returns nil when the
// policy did not fire or nothing needs compacting. A precondition violation is returned
// as PreconditionFailed and leaves the timeline untouched.
func (s *Scheduler) Schedule(ctx context.Context) (*model.CompactionPlan, error) {
	return s.schedule(ctx, false)
}

// ForceSchedule requests a compaction regardless of the trigger policy; the precondition
// still applies
func (s *Scheduler) ForceSchedule(ctx context.Context) (*model.CompactionPlan, error) {
	return s.schedule(ctx, true)
}

func (s *Scheduler) schedule(ctx context.Context, force bool) (*model.CompactionPlan, error) {
	tl, err := s.table.LoadTimeline(ctx)
	if err != nil {
		return nil, err
	}
	instantTime := s.table.NewInstantTime()

	counters, err := ComputeCounters(tl, instantTime)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckPrecondition(counters); err != nil {
		s.table.Metrics().PreconditionFailuresTotal.Inc()
		return nil, err
	}

	triggered := s.policy.ShouldTrigger(counters)
	s.table.Metrics().RecordTriggerEvaluation(s.policy.Strategy, triggered)
	s.logger.Debug("Compaction trigger evaluated",
		zap.String("strategy", s.policy.Strategy),
		zap.Int("delta_commits_since_last_compaction", counters.DeltaCommitsSinceLastCompaction),
		zap.Int("delta_commits_since_last_request", counters.DeltaCommitsSinceLastRequest),
		zap.Duration("elapsed", counters.Elapsed),
		zap.Bool("triggered", triggered),
		zap.Bool("forced", force))
	if !triggered && !force {
		return nil, nil
	}

	v, err := s.table.BuildView(ctx, plannableTimeline(tl), storage.AllPartitions)
	if err != nil {
		return nil, err
	}
	plan := BuildPlan(v, instantTime, s.targetIOBytes)
	if len(plan.Operations) == 0 {
		s.logger.Debug("No file slices to compact", zap.String("instant_time", instantTime))
		return nil, nil
	}

	content, err := timeline.EncodeCompactionPlan(plan)
	if err != nil {
		return nil, err
	}
	if _, err := s.table.CreateRequested(ctx, model.ActionCompaction, instantTime, content); err != nil {
		return nil, fmt.Errorf("failed to request compaction: %w", err)
	}
	s.table.Metrics().RecordCompactionScheduled(len(plan.Operations))
	s.logger.Info("Compaction scheduled",
		zap.String("instant_time", instantTime),
		zap.String("strategy", plan.Strategy),
		zap.Int("operations", len(plan.Operations)),
		zap.Int64("log_bytes", plan.TotalLogBytes()))
	return plan, nil
}

// plannableTimeline drops write instants that never completed, so file groups created by
// a failed delta commit are not compacted
func plannableTimeline(tl *timeline.Timeline) *timeline.Timeline {
	return tl.FilterCompletedAndCompactions()
}
