package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// MockInstantStore is a mock implementation of InstantStore
type MockInstantStore struct {
	mock.Mock
}

func (m *MockInstantStore) PutInstant(ctx context.Context, instant model.Instant, content []byte) error {
	args := m.Called(ctx, instant, content)
	return args.Error(0)
}

func (m *MockInstantStore) ListInstants(ctx context.Context) ([]model.Instant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Instant), args.Error(1)
}

func (m *MockInstantStore) ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error) {
	args := m.Called(ctx, instant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockInstantStore) DeleteInstant(ctx context.Context, instant model.Instant) error {
	args := m.Called(ctx, instant)
	return args.Error(0)
}

func (m *MockInstantStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockInstantStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var testPolicy = RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxElapsed: time.Second}

func TestRetryingStore_RetriesTransient(t *testing.T) {
	inner := new(MockInstantStore)
	in := model.NewInstant(model.StateRequested, model.ActionDeltaCommit, "20240101000000001")

	inner.On("PutInstant", mock.Anything, in, []byte("x")).
		Return(tcerrors.Unavailable("database is locked", nil)).Once()
	inner.On("PutInstant", mock.Anything, in, []byte("x")).Return(nil).Once()

	s := NewRetryingStore(inner, testPolicy, zap.NewNop())
	require.NoError(t, s.PutInstant(context.Background(), in, []byte("x")))
	inner.AssertNumberOfCalls(t, "PutInstant", 2)
}

func TestRetryingStore_PermanentErrorNotRetried(t *testing.T) {
	inner := new(MockInstantStore)
	in := model.NewInstant(model.StateRequested, model.ActionDeltaCommit, "20240101000000001")
	inner.On("PutInstant", mock.Anything, in, mock.Anything).Return(tcerrors.InstantExists(in.FileName()))

	s := NewRetryingStore(inner, testPolicy, zap.NewNop())
	err := s.PutInstant(context.Background(), in, []byte("x"))
	assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeInstantExists))
	inner.AssertNumberOfCalls(t, "PutInstant", 1)
}

func TestRetryingStore_AmbiguousWriteWithIdenticalContent(t *testing.T) {
	inner := new(MockInstantStore)
	in := model.NewInstant(model.StateCompleted, model.ActionDeltaCommit, "20240101000000001")

	// first attempt reached storage but reported a failure
	inner.On("PutInstant", mock.Anything, in, []byte("md")).
		Return(tcerrors.Unavailable("connection reset", nil)).Once()
	inner.On("PutInstant", mock.Anything, in, []byte("md")).
		Return(tcerrors.InstantExists(in.FileName())).Once()
	inner.On("ReadInstant", mock.Anything, in).Return([]byte("md"), nil).Once()

	s := NewRetryingStore(inner, testPolicy, zap.NewNop())
	require.NoError(t, s.PutInstant(context.Background(), in, []byte("md")))
	inner.AssertExpectations(t)
}

func TestRetryingStore_AmbiguousWriteWithDifferentContent(t *testing.T) {
	inner := new(MockInstantStore)
	in := model.NewInstant(model.StateCompleted, model.ActionDeltaCommit, "20240101000000001")

	inner.On("PutInstant", mock.Anything, in, []byte("mine")).
		Return(tcerrors.Unavailable("connection reset", nil)).Once()
	inner.On("PutInstant", mock.Anything, in, []byte("mine")).
		Return(tcerrors.InstantExists(in.FileName())).Once()
	inner.On("ReadInstant", mock.Anything, in).Return([]byte("theirs"), nil).Once()

	s := NewRetryingStore(inner, testPolicy, zap.NewNop())
	err := s.PutInstant(context.Background(), in, []byte("mine"))
	assert.True(t, tcerrors.IsCode(err, tcerrors.ErrCodeInstantExists))
}

func TestRetryingStore_GivesUp(t *testing.T) {
	inner := new(MockInstantStore)
	inner.On("ListInstants", mock.Anything).Return(nil, tcerrors.Unavailable("busy", fmt.Errorf("SQLITE_BUSY")))

	s := NewRetryingStore(inner, testPolicy, zap.NewNop())
	_, err := s.ListInstants(context.Background())
	require.Error(t, err)
	assert.True(t, tcerrors.IsTransient(err))
	inner.AssertNumberOfCalls(t, "ListInstants", testPolicy.MaxRetries+1)
}
