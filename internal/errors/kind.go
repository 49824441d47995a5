package errors

import (
	"errors"
)

// Kind is a finite classification of the errors surfaced to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidConfig
	KindNotStarted
	KindAlreadyStarted
	KindAlreadyStopped
	KindClosed
	KindRejected
	KindValidation
	KindStorage
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindInvalidConfig:  "invalid_config",
	KindNotStarted:     "not_started",
	KindAlreadyStarted: "already_started",
	KindAlreadyStopped: "already_stopped",
	KindClosed:         "closed",
	KindRejected:       "rejected",
	KindValidation:     "validation",
	KindStorage:        "storage",
}

// String returns the snake_case name used in logs, metrics and responses.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindOf classifies err. Wrapped errors are unwrapped; nil is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var configErr *InvalidConfigError
	var validationErr *ValidationError
	var storageErr *StorageError

	switch {
	case errors.As(err, &configErr):
		return KindInvalidConfig
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &storageErr):
		return KindStorage
	case errors.Is(err, ErrNotStarted):
		return KindNotStarted
	case errors.Is(err, ErrAlreadyStarted):
		return KindAlreadyStarted
	case errors.Is(err, ErrAlreadyStopped):
		return KindAlreadyStopped
	case errors.Is(err, ErrClosed), errors.Is(err, ErrPublisherClosed), errors.Is(err, ErrWriterClosed):
		return KindClosed
	case errors.Is(err, ErrRejected), errors.Is(err, ErrBufferFull):
		return KindRejected
	default:
		return KindUnknown
	}
}
