package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrStopped is returned when submitting to a stopped pool
	ErrStopped = errors.New("worker pool is stopped")
	// ErrQueueFull is returned when the queue has no room left
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrDuplicate is returned when a task with the same key is queued or running
	ErrDuplicate = errors.New("task already queued or running")
)

// Task is a unit of work. Key identifies the work item: two tasks with the same key
// never run or queue at the same time.
type Task struct {
	Key string
	Fn  func(context.Context) error
}

// WorkerPool runs keyed tasks on a bounded set of goroutines, optionally throttled
type WorkerPool struct {
	name       string
	maxWorkers int
	queueSize  int
	taskQueue  chan Task
	limiter    *rate.Limiter
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	stopped  bool

	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	// RatePerSec limits task starts per second; zero disables throttling
	RatePerSec float64
	Logger     *zap.Logger
}

// NewWorkerPool creates a pool and starts its workers
func NewWorkerPool(cfg Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		taskQueue:  make(chan Task, cfg.QueueSize),
		limiter:    limiter,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		inflight:   make(map[string]struct{}),
	}

	for i := 0; i < pool.maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.maxWorkers),
		zap.Int("queue_size", pool.queueSize),
		zap.Float64("rate_per_sec", cfg.RatePerSec))

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.taskQueue:
			if err := p.limiter.Wait(p.ctx); err != nil {
				p.release(task.Key)
				return
			}
			p.executeTask(id, task)
		}
	}
}

func (p *WorkerPool) executeTask(workerID int, task Task) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer p.release(task.Key)

	start := time.Now()
	err := p.safeExecute(task)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		p.logger.Error("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task", task.Key),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&p.completedTasks, 1)
	p.logger.Debug("Task completed",
		zap.String("pool", p.name),
		zap.Int("worker_id", workerID),
		zap.String("task", task.Key),
		zap.Duration("duration", duration))
}

// safeExecute executes a task with panic recovery
func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Fn(p.ctx)
}

func (p *WorkerPool) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

// Submit queues a task without blocking
func (p *WorkerPool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ErrStopped
	}
	if _, ok := p.inflight[task.Key]; ok {
		return ErrDuplicate
	}
	select {
	case p.taskQueue <- task:
		p.inflight[task.Key] = struct{}{}
		atomic.AddUint64(&p.totalTasks, 1)
		return nil
	default:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ErrQueueFull
	}
}

// Stop cancels the context passed to running tasks, drops queued ones and waits for
// workers up to timeout
func (p *WorkerPool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool", zap.String("name", p.name))
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully", zap.String("name", p.name))
		return nil
	case <-time.After(timeout):
		p.logger.Warn("Worker pool stop timeout", zap.String("name", p.name))
		return fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
	}
}

// Stats returns current worker pool statistics
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.taskQueue),
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&p.rejectedTasks),
	}
}

// Stats represents worker pool statistics
type Stats struct {
	Name           string
	MaxWorkers     int
	ActiveWorkers  int
	QueueSize      int
	QueuedTasks    int
	TotalTasks     uint64
	CompletedTasks uint64
	FailedTasks    uint64
	RejectedTasks  uint64
}

// SuccessRate returns the task success rate as a percentage of finished tasks
func (s Stats) SuccessRate() float64 {
	finished := s.CompletedTasks + s.FailedTasks
	if finished == 0 {
		return 100.0
	}
	return float64(s.CompletedTasks) / float64(finished) * 100.0
}
