// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrSchedulerNotStarted indicates the scheduler has not been started
	ErrSchedulerNotStarted = errors.New("scheduler is not started")

	// ErrSchedulerClosed indicates the scheduler is closed
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrUnitCancelled indicates a pending unit was cancelled before dispatch
	ErrUnitCancelled = errors.New("work unit cancelled")

	// ErrNoResult indicates a handle was queried before reaching a terminal state
	ErrNoResult = errors.New("work unit has no result yet")
)

// SubmissionError reports a malformed submission batch. The whole batch is
// rejected; no unit from it enters the queue.
type SubmissionError struct {
	// UnitID is the offending unit id
	UnitID int64

	// Reason describes why the submission was rejected
	Reason string
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected for unit %d: %s", e.UnitID, e.Reason)
}

// NewSubmissionError creates a new submission error
func NewSubmissionError(unitID int64, reason string) *SubmissionError {
	return &SubmissionError{UnitID: unitID, Reason: reason}
}

// WorkerExecutionError wraps a failure (error return or panic) of the pricing
// computation on a worker. It is captured at the scheduler boundary and only
// surfaces when the caller inspects the corresponding handle.
type WorkerExecutionError struct {
	// WorkerID identifies the worker the unit was running on
	WorkerID int

	// UnitID identifies the failed unit
	UnitID int64

	// Cause is the underlying error
	Cause error

	// Context carries diagnostic details such as a panic stack trace
	Context map[string]interface{}
}

// Error implements the error interface
func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("unit %d failed on worker %d: %v", e.UnitID, e.WorkerID, e.Cause)
}

// Unwrap returns the underlying error
func (e *WorkerExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *WorkerExecutionError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewWorkerExecutionError creates a new worker execution error
func NewWorkerExecutionError(workerID int, unitID int64, cause error) *WorkerExecutionError {
	return &WorkerExecutionError{
		WorkerID: workerID,
		UnitID:   unitID,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *WorkerExecutionError) WithContext(key string, value interface{}) *WorkerExecutionError {
	e.Context[key] = value
	return e
}
