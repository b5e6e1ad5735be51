// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrMarketClosed     = errors.New("market is closed")
	ErrUnknownJob       = errors.New("unknown job")
	ErrUnknownCadence   = errors.New("unknown cadence")
	ErrUnknownGate      = errors.New("unknown gating mode")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrNoQuoteHistory   = errors.New("insufficient quote history")
)

// StorageError represents a snapshot read/write failure. The prior on-disk
// state is untouched when one of these is returned.
type StorageError struct {
	Name string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [%s] %s: %v", e.Name, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(name, op string, err error) *StorageError {
	return &StorageError{Name: name, Op: op, Err: err}
}

// FetchError represents an unreachable or malformed external data source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [%s]: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err}
}

// NotifyError represents delivery failure after retry exhaustion.
type NotifyError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify error [%s] after %d attempts: %v", e.Channel, e.Attempts, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// NewNotifyError creates a new NotifyError.
func NewNotifyError(channel string, attempts int, err error) *NotifyError {
	return &NotifyError{Channel: channel, Attempts: attempts, Err: err}
}

// ClockError represents a calendar or timezone resolution failure.
// Callers treat it as "assume open" so trading-hours work is never
// silently skipped.
type ClockError struct {
	Zone string
	Err  error
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("clock error [%s]: %v", e.Zone, e.Err)
}

func (e *ClockError) Unwrap() error {
	return e.Err
}

// NewClockError creates a new ClockError.
func NewClockError(zone string, err error) *ClockError {
	return &ClockError{Zone: zone, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
