package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrProjectNotFound   = fmt.Errorf("%w: project not found", ErrValidation)
	ErrEmptyScript       = fmt.Errorf("%w: script has no segments with text", ErrValidation)
	ErrActiveJobExists   = errors.New("project already has an active generation job")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleTransition   = errors.New("job already reached a terminal state")
	ErrNotReady          = errors.New("generation output not ready")
	ErrConcurrentUpdate  = errors.New("job was modified concurrently")
)

// ConflictError is returned when a project already has a non-terminal job.
type ConflictError struct {
	ExistingJobID string
	Status        JobStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: job %s is %s", ErrActiveJobExists, e.ExistingJobID, e.Status)
}

func (e *ConflictError) Unwrap() error { return ErrActiveJobExists }
