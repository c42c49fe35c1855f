package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound covers missing reservations and ones the caller does not own.
	ErrNotFound         = errors.New("reservation not found")
	ErrAlreadyCancelled = errors.New("reservation is already cancelled")
	ErrSlotNotFound     = errors.New("time slot not found")
	ErrSlotInactive     = errors.New("time slot is not available for booking")
	ErrSlotInUse        = errors.New("time slot has reservations and cannot be deleted")
)

// ValidationError maps field names to human-readable problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// CapacityExceededError carries the seat count left when the request was
// refused so callers can show it without asking again.
type CapacityExceededError struct {
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("No seats remaining for this time slot (only %d spots left)", e.Remaining)
}

// StorageError wraps a failed read or write against the database.
// Retryable is set for lock conflicts and lost connections.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err, Retryable: true}
}
