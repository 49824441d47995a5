package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotStarted", ErrNotStarted},
		{"ErrAlreadyStarted", ErrAlreadyStarted},
		{"ErrAlreadyStopped", ErrAlreadyStopped},
		{"ErrClosed", ErrClosed},
		{"ErrRejected", ErrRejected},
		{"ErrBufferFull", ErrBufferFull},
		{"ErrWriterClosed", ErrWriterClosed},
		{"ErrPublisherClosed", ErrPublisherClosed},
		{"ErrConnectionLost", ErrConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestInvalidConfigError(t *testing.T) {
	err := &InvalidConfigError{Field: "buffer_size", Value: 3, Reason: "must be a power of two"}

	want := "invalid config: field=buffer_size value=3: must be a power of two"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDispatchError(t *testing.T) {
	baseErr := errors.New("boom")
	dispatchErr := &DispatchError{Pipeline: "audit", Stage: "handle", Sequence: 7, Err: baseErr}

	if !errors.Is(dispatchErr, baseErr) {
		t.Error("DispatchError should wrap base error")
	}
	if dispatchErr.IsRetryable() {
		t.Error("DispatchError wrapping a plain error should not be retryable")
	}

	rejected := &DispatchError{Pipeline: "audit", Stage: "submit", Err: ErrRejected}
	if !rejected.IsRetryable() {
		t.Error("DispatchError wrapping ErrRejected should be retryable")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/file.parquet",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}
	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"wrapped connection lost", fmt.Errorf("send: %w", ErrConnectionLost), true},
		{"rejected", ErrRejected, true},
		{"closed", ErrClosed, false},
		{"storage write", &StorageError{Operation: "write", Err: errors.New("x")}, true},
		{"storage delete", &StorageError{Operation: "delete", Err: errors.New("x")}, false},
		{"validation", &ValidationError{Field: "id"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"invalid config", &InvalidConfigError{Field: "f"}, KindInvalidConfig},
		{"wrapped invalid config", fmt.Errorf("start: %w", &InvalidConfigError{Field: "f"}), KindInvalidConfig},
		{"not started", ErrNotStarted, KindNotStarted},
		{"already started", ErrAlreadyStarted, KindAlreadyStarted},
		{"already stopped", ErrAlreadyStopped, KindAlreadyStopped},
		{"closed", ErrClosed, KindClosed},
		{"publisher closed", ErrPublisherClosed, KindClosed},
		{"rejected", ErrRejected, KindRejected},
		{"validation", &ValidationError{Field: "id"}, KindValidation},
		{"storage", &StorageError{Operation: "upload"}, KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindRejected.String() != "rejected" {
		t.Errorf("String() = %q, want rejected", KindRejected.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("String() = %q, want unknown", Kind(99).String())
	}
}
