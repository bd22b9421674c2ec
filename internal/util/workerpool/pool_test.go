package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 2, QueueSize: 8, Logger: zap.NewNop()})
	defer pool.Stop(time.Second)

	var ran int32
	done := make(chan struct{}, 3)
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Submit(Task{Key: key, Fn: func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			done <- struct{}{}
			return nil
		}}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("task did not run")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestWorkerPool_RejectsDuplicateKeys(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 1, QueueSize: 4})
	defer pool.Stop(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Key: "c1", Fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	assert.ErrorIs(t, pool.Submit(Task{Key: "c1", Fn: func(context.Context) error { return nil }}), ErrDuplicate)
	close(release)

	assert.Eventually(t, func() bool {
		return pool.Submit(Task{Key: "c1", Fn: func(context.Context) error { return nil }}) == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_FailuresAndPanics(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 1, QueueSize: 4})
	defer pool.Stop(time.Second)

	require.NoError(t, pool.Submit(Task{Key: "err", Fn: func(context.Context) error { return errors.New("boom") }}))
	require.NoError(t, pool.Submit(Task{Key: "panic", Fn: func(context.Context) error { panic("boom") }}))

	assert.Eventually(t, func() bool { return pool.Stats().FailedTasks == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, pool.Stats().SuccessRate())
}

func TestWorkerPool_Stop(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 1, QueueSize: 1})

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Key: "long", Fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}))
	<-started

	require.NoError(t, pool.Stop(5*time.Second))
	<-cancelled
	assert.ErrorIs(t, pool.Submit(Task{Key: "late", Fn: func(context.Context) error { return nil }}), ErrStopped)
}
