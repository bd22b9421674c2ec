package store

import (
	"bytes"
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// RetryPolicy controls the exponential backoff applied to transient store failures
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// RetryingStore retries transient failures of the wrapped store with exponential backoff
type RetryingStore struct {
	inner  InstantStore
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingStore wraps inner
func NewRetryingStore(inner InstantStore, policy RetryPolicy, logger *zap.Logger) *RetryingStore {
	return &RetryingStore{inner: inner, policy: policy, logger: logger}
}

// Unwrap returns the wrapped store
func (s *RetryingStore) Unwrap() InstantStore { return s.inner }

func (s *RetryingStore) newBackoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.policy.InitialInterval
	eb.MaxElapsedTime = s.policy.MaxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.policy.MaxRetries)), ctx)
}

func (s *RetryingStore) retry(ctx context.Context, op string, fn func(attempt int) error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		err := fn(attempt)
		attempt++
		if err != nil && !tcerrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.newBackoff(ctx), func(err error, wait time.Duration) {
		s.logger.Warn("Retrying instant store operation",
			zap.String("operation", op),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
}

// PutInstant retries transient failures. A retried write may have reached durable storage
// before its failure was reported, so finding the identical artifact on a later attempt
// counts as success; different content is still reported as InstantExists.
func (s *RetryingStore) PutInstant(ctx context.Context, instant model.Instant, content []byte) error {
	return s.retry(ctx, "put_instant", func(attempt int) error {
		err := s.inner.PutInstant(ctx, instant, content)
		if attempt > 0 && tcerrors.IsCode(err, tcerrors.ErrCodeInstantExists) {
			existing, readErr := s.inner.ReadInstant(ctx, instant)
			if readErr == nil && bytes.Equal(existing, content) {
				return nil
			}
		}
		return err
	})
}

func (s *RetryingStore) ListInstants(ctx context.Context) ([]model.Instant, error) {
	var out []model.Instant
	err := s.retry(ctx, "list_instants", func(int) error {
		var err error
		out, err = s.inner.ListInstants(ctx)
		return err
	})
	return out, err
}

func (s *RetryingStore) ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error) {
	var out []byte
	err := s.retry(ctx, "read_instant", func(int) error {
		var err error
		out, err = s.inner.ReadInstant(ctx, instant)
		return err
	})
	return out, err
}

// DeleteInstant treats a missing artifact on a retried attempt as already deleted
func (s *RetryingStore) DeleteInstant(ctx context.Context, instant model.Instant) error {
	return s.retry(ctx, "delete_instant", func(attempt int) error {
		err := s.inner.DeleteInstant(ctx, instant)
		if attempt > 0 && tcerrors.IsCode(err, tcerrors.ErrCodeInstantNotFound) {
			return nil
		}
		return err
	})
}

func (s *RetryingStore) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *RetryingStore) Close() error { return s.inner.Close() }
