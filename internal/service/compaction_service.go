package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/util/workerpool"
)

// CompactionService schedules and executes compactions in the background for writers
// that do not compact inline
type CompactionService struct {
	client   *WriteClient
	interval time.Duration
	pool     *workerpool.WorkerPool
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu   sync.Mutex
	jobs map[string]model.CompactionStatus

	compactionsScheduled uint64 // Atomic counter for metrics
	compactionsCompleted uint64 // Atomic counter for metrics
	compactionErrors     uint64 // Atomic counter for metrics
}

// CompactionServiceStats is a snapshot of the service counters
type CompactionServiceStats struct {
	Scheduled uint64
	Completed uint64
	Errors    uint64
	Pool      workerpool.Stats
}

// passKey identifies the background pass in the worker pool, so ticks never overlap
const passKey = "compaction-pass"

// NewCompactionService creates a compaction service sharing the client's sequencing lock
func NewCompactionService(client *WriteClient, logger *zap.Logger) *CompactionService {
	cfg := client.Table().Config().Compaction
	return &CompactionService{
		client:   client,
		interval: cfg.Interval,
		pool: workerpool.NewWorkerPool(workerpool.Config{
			Name:       "compaction",
			MaxWorkers: 1,
			QueueSize:  1,
			RatePerSec: cfg.ThrottleOpsPerSec,
			Logger:     logger,
		}),
		logger:   logger,
		stopChan: make(chan struct{}),
		jobs:     make(map[string]model.CompactionStatus),
	}
}

// Start runs the scheduling loop until Stop is called or ctx is done
func (s *CompactionService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.compactionScheduler(ctx)
}

// compactionScheduler periodically queues a compaction pass
func (s *CompactionService) compactionScheduler(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Compaction scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ticker.C:
			s.submitPass()
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *CompactionService) submitPass() {
	err := s.pool.Submit(workerpool.Task{Key: passKey, Fn: s.RunOnce})
	switch {
	case err == nil:
	case errors.Is(err, workerpool.ErrDuplicate), errors.Is(err, workerpool.ErrQueueFull):
		s.logger.Debug("Compaction pass already queued")
	default:
		s.logger.Debug("Compaction pass not submitted", zap.Error(err))
	}
}

// RunOnce completes the pending compactions in instant order, then evaluates the trigger
// policy and executes the compaction it schedules. It stops at the first failed
// compaction, which stays pending for the next pass.
func (s *CompactionService) RunOnce(ctx context.Context) error {
	tl, err := s.client.Table().LoadTimeline(ctx)
	if err != nil {
		return err
	}
	pending := tl.FilterPendingCompactions()
	for in := range pending.Instants() {
		s.setStatus(in.Timestamp, model.CompactionStatusPending)
	}
	for in := range pending.Instants() {
		if err := s.executeCompaction(ctx, in.Timestamp); err != nil {
			return err
		}
	}

	plan, err := s.client.ScheduleCompaction(ctx, false)
	switch {
	case tcerrors.IsCode(err, tcerrors.ErrCodePreconditionFailed):
		s.logger.Debug("Compaction not scheduled", zap.Error(err))
		return nil
	case err != nil:
		return err
	case plan == nil:
		return nil
	}
	atomic.AddUint64(&s.compactionsScheduled, 1)
	s.logger.Info("Compaction scheduled",
		zap.String("instant_time", plan.InstantTime),
		zap.Int("operations", len(plan.Operations)))
	return s.executeCompaction(ctx, plan.InstantTime)
}

// executeCompaction performs one compaction under the client's sequencing lock
func (s *CompactionService) executeCompaction(ctx context.Context, instantTime string) error {
	s.setStatus(instantTime, model.CompactionStatusRunning)
	md, err := s.client.Compact(ctx, instantTime)
	if err != nil {
		// an instant completed by a concurrent writer is no longer pending
		if tcerrors.IsCode(err, tcerrors.ErrCodePreconditionFailed) {
			s.clearStatus(instantTime)
			return nil
		}
		atomic.AddUint64(&s.compactionErrors, 1)
		s.setStatus(instantTime, model.CompactionStatusFailed)
		return err
	}
	atomic.AddUint64(&s.compactionsCompleted, 1)
	s.clearStatus(instantTime)
	s.logger.Info("Compaction completed",
		zap.String("instant_time", instantTime),
		zap.Int("files", len(md.WriteStats)))
	return nil
}

func (s *CompactionService) setStatus(instantTime string, status model.CompactionStatus) {
	s.mu.Lock()
	s.jobs[instantTime] = status
	s.mu.Unlock()
}

func (s *CompactionService) clearStatus(instantTime string) {
	s.mu.Lock()
	delete(s.jobs, instantTime)
	s.mu.Unlock()
}

// Jobs returns the status of compactions the service has queued and not yet completed
func (s *CompactionService) Jobs() map[string]model.CompactionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.CompactionStatus, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}

// Stats returns the service counters
func (s *CompactionService) Stats() CompactionServiceStats {
	return CompactionServiceStats{
		Scheduled: atomic.LoadUint64(&s.compactionsScheduled),
		Completed: atomic.LoadUint64(&s.compactionsCompleted),
		Errors:    atomic.LoadUint64(&s.compactionErrors),
		Pool:      s.pool.Stats(),
	}
}

// Stop stops the scheduler and waits for a running pass; an interrupted compaction stays
// inflight and is resumed by the next pass
func (s *CompactionService) Stop(timeout time.Duration) error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.pool.Stop(timeout)
}
