package taskqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskExecutionFailed is matched by errors from a single task attempt.
	ErrTaskExecutionFailed = errors.New("task execution failed")

	// ErrBatchDispatchFailed is matched by failures that hit a whole batch.
	ErrBatchDispatchFailed = errors.New("batch dispatch failed")

	// ErrAlreadyRunning is returned by Start when the loop is running.
	ErrAlreadyRunning = errors.New("task queue already running")
)

// TaskExecutionFailedError wraps the executor error of one attempt.
type TaskExecutionFailedError struct {
	TaskID  string
	Attempt int
	Cause   error
}

// Error implements the error interface.
func (e *TaskExecutionFailedError) Error() string {
	return fmt.Sprintf("task %s attempt %d failed: %v", e.TaskID, e.Attempt, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *TaskExecutionFailedError) Is(target error) bool {
	return target == ErrTaskExecutionFailed
}

// Unwrap returns the executor error.
func (e *TaskExecutionFailedError) Unwrap() error {
	return e.Cause
}

// BatchDispatchFailedError is applied to every unfinished task of a batch
// when the batch fails before per-task results are known.
type BatchDispatchFailedError struct {
	Type  TaskType
	Size  int
	Cause error
}

// Error implements the error interface.
func (e *BatchDispatchFailedError) Error() string {
	return fmt.Sprintf("batch of %d %s tasks failed: %v", e.Size, e.Type, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *BatchDispatchFailedError) Is(target error) bool {
	return target == ErrBatchDispatchFailed
}

// Unwrap returns the batch-level cause.
func (e *BatchDispatchFailedError) Unwrap() error {
	return e.Cause
}

// ValidationError reports an invalid TaskSpec.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task %s: %s", e.Field, e.Message)
}
