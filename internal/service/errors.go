package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCandidate means no technician satisfies the availability and exclusion constraints.
	ErrNoCandidate = errors.New("no candidate technician")

	// ErrInvalidTransition is returned for lifecycle moves the job state machine forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ConflictError lists the jobs overlapping a proposed interval on one technician's timeline.
type ConflictError struct {
	TechnicianID string
	JobIDs       []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("technician %s has conflicting jobs: %s", e.TechnicianID, strings.Join(e.JobIDs, ", "))
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
