package logbook

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMappingIncomplete means a required field has no source column assigned.
	ErrMappingIncomplete = errors.New("mapping incomplete")
	// ErrRecordInvalid means one record could not be turned into a flight.
	ErrRecordInvalid = errors.New("record invalid")
	// ErrStore wraps failures reported by the persistence layer.
	ErrStore = errors.New("store error")
	// ErrSourceRead means the record source failed before it was exhausted.
	ErrSourceRead = errors.New("source read error")
)

// MappingIncompleteError lists the required fields a mapping leaves unassigned.
type MappingIncompleteError struct {
	Missing []Field
}

func (e *MappingIncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: no column for %s", ErrMappingIncomplete, strings.Join(names, ", "))
}

func (e *MappingIncompleteError) Unwrap() error { return ErrMappingIncomplete }

// RecordError describes why a single record was rejected.
type RecordError struct {
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRecordInvalid, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrRecordInvalid }

func invalid(format string, args ...any) error {
	return &RecordError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError collects every problem found in an interactively entered flight.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid flight: " + strings.Join(e.Problems, "; ")
}
