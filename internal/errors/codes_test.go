package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestTableError_Wrapping(t *testing.T) {
	cause := fmt.Errorf("disk unplugged")
	err := fmt.Errorf("failed to persist instant: %w", DurableWriteFailed("write artifact", cause))

	assert.True(t, IsCode(err, ErrCodeDurableWriteFailed))
	assert.False(t, IsCode(err, ErrCodeInternal))
	assert.Equal(t, ErrCodeDurableWriteFailed, GetCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk unplugged")
}

func TestGetCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeOK, GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("boom")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Unavailable("database is locked", nil)))
	assert.False(t, IsTransient(PreconditionFailed("pending request")))
	assert.False(t, IsTransient(nil))
}

func TestToGRPCStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *TableError
		want codes.Code
	}{
		{"precondition", PreconditionFailed("x"), codes.FailedPrecondition},
		{"transition", InvalidTransition("20240101000000000", "completed", "inflight"), codes.FailedPrecondition},
		{"not found", InstantNotFound("20240101000000000"), codes.NotFound},
		{"exists", InstantExists("20240101000000000"), codes.AlreadyExists},
		{"unavailable", Unavailable("busy", nil), codes.Unavailable},
		{"corrupted", CorruptedMetadata("bad plan", nil), codes.DataLoss},
		{"durable", DurableWriteFailed("write", nil), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ToGRPCStatus().Code())
		})
	}
}

func TestInvalidTransition_Details(t *testing.T) {
	err := InvalidTransition("20240101000000000", "requested", "completed")
	assert.Equal(t, "requested", err.Details["from"])
	assert.Equal(t, "completed", err.Details["to"])
}
