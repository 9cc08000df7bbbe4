package common

import (
	"errors"
)

// Common error constants
var (
	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnection is returned when the broker cannot be reached after the retry policy is exhausted
	ErrConnection = errors.New("broker connection failed")

	// ErrUnsupportedJobKind is returned when a job kind has no registered processor
	ErrUnsupportedJobKind = errors.New("unsupported job kind")

	// ErrNotImplemented is returned when a method is not implemented
	ErrNotImplemented = errors.New("method not implemented")
)
