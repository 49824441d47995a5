// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle and dispatch conditions.
var (
	ErrNotStarted      = errors.New("pipeline is not started")
	ErrAlreadyStarted  = errors.New("pipeline is already started")
	ErrAlreadyStopped  = errors.New("pipeline is already stopped")
	ErrClosed          = errors.New("pipeline is closed")
	ErrRejected        = errors.New("dispatch executor rejected task")
	ErrBufferFull      = errors.New("buffer is full")
	ErrWriterClosed    = errors.New("storage writer is closed")
	ErrPublisherClosed = errors.New("audit publisher is closed")
	ErrConnectionLost  = errors.New("connection lost")
)

// InvalidConfigError reports a configuration value rejected at start time.
type InvalidConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: field=%s value=%v: %s", e.Field, e.Value, e.Reason)
}

// DispatchError represents a failure isolated by the fault policy.
// Stage is one of "handoff", "submit" or "handle".
type DispatchError struct {
	Pipeline string
	Stage    string
	Sequence int64
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error: pipeline=%s stage=%s sequence=%d: %v",
		e.Pipeline, e.Stage, e.Sequence, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// ValidationError represents an event validation failure.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: event_id=%s field=%s: %s",
		e.EventID, e.Field, e.Reason)
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrRejected)
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable reports whether the isolated failure is worth another attempt.
func (e *DispatchError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
