package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for table operations
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument    ErrorCode = 1000
	ErrCodePreconditionFailed ErrorCode = 1001
	ErrCodeInvalidTransition  ErrorCode = 1002
	ErrCodeInstantNotFound    ErrorCode = 1003
	ErrCodeInstantExists      ErrorCode = 1004
	ErrCodeTableNotFound      ErrorCode = 1005

	// Storage errors
	ErrCodeInternal           ErrorCode = 2000
	ErrCodeUnavailable        ErrorCode = 2001
	ErrCodeDurableWriteFailed ErrorCode = 2002
	ErrCodeCorruptedMetadata  ErrorCode = 2003
)

// TableError represents a structured error with code and context
type TableError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *TableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TableError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts TableError to a gRPC status for services embedding the table core
func (e *TableError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *TableError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodePreconditionFailed, ErrCodeInvalidTransition:
		return codes.FailedPrecondition
	case ErrCodeInstantNotFound, ErrCodeTableNotFound:
		return codes.NotFound
	case ErrCodeInstantExists:
		return codes.AlreadyExists
	case ErrCodeUnavailable:
		return codes.Unavailable
	case ErrCodeCorruptedMetadata:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// NewTableError creates a new TableError
func NewTableError(code ErrorCode, message string, cause error) *TableError {
	return &TableError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *TableError) WithDetail(key string, value interface{}) *TableError {
	e.Details[key] = value
	return e
}

func InvalidArgument(message string, cause error) *TableError {
	return NewTableError(ErrCodeInvalidArgument, message, cause)
}

func PreconditionFailed(message string) *TableError {
	return NewTableError(ErrCodePreconditionFailed, message, nil)
}

func InvalidTransition(instant, from, to string) *TableError {
	return NewTableError(ErrCodeInvalidTransition,
		fmt.Sprintf("invalid transition for instant %s: %s -> %s", instant, from, to), nil).
		WithDetail("instant", instant).
		WithDetail("from", from).
		WithDetail("to", to)
}

func InstantNotFound(instant string) *TableError {
	return NewTableError(ErrCodeInstantNotFound, fmt.Sprintf("instant not found: %s", instant), nil).
		WithDetail("instant", instant)
}

func InstantExists(instant string) *TableError {
	return NewTableError(ErrCodeInstantExists, fmt.Sprintf("instant already exists: %s", instant), nil).
		WithDetail("instant", instant)
}

func TableNotFound(basePath string, cause error) *TableError {
	return NewTableError(ErrCodeTableNotFound, fmt.Sprintf("no table found at %s", basePath), cause).
		WithDetail("base_path", basePath)
}

func InternalError(message string, cause error) *TableError {
	return NewTableError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *TableError {
	return NewTableError(ErrCodeUnavailable, message, cause)
}

func DurableWriteFailed(message string, cause error) *TableError {
	return NewTableError(ErrCodeDurableWriteFailed, message, cause)
}

func CorruptedMetadata(message string, cause error) *TableError {
	return NewTableError(ErrCodeCorruptedMetadata, message, cause)
}

// GetCode extracts the error code from anywhere in the error chain
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var te *TableError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries a TableError with the given code
func IsCode(err error, code ErrorCode) bool {
	var te *TableError
	if !stderrors.As(err, &te) {
		return false
	}
	return te.Code == code
}

// IsTransient reports whether retrying the operation may succeed
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeUnavailable)
}
