// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agenttask

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the task error taxonomy. Every typed error below matches
// exactly one of them with [errors.Is].
var (
	// ErrInvalidTransition is returned when the state machine is misused.
	// It always denotes a caller or logic bug and must not be retried.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrAlreadyTerminal is returned when canceling a task that already finished.
	ErrAlreadyTerminal = errors.New("task is already in a terminal state")

	// ErrNotFound is returned for unknown task or handle IDs.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when a synchronous wait exceeded its deadline.
	// The task itself may still be running.
	ErrTimeout = errors.New("timed out waiting for task")

	// ErrOverflow is reported by a subscription that fell too far behind.
	// The subscription is torn down, the task continues.
	ErrOverflow = errors.New("subscription overflow")

	// ErrGeneratorFailure is returned when the response generator failed.
	ErrGeneratorFailure = errors.New("response generator failed")

	// ErrCanceled is returned to synchronous callers of a canceled task.
	ErrCanceled = errors.New("task canceled")
)

// ErrorKind is the stable, machine readable kind of a task error.
type ErrorKind string

const (
	ErrorKindUnknown           ErrorKind = "unknown"
	ErrorKindInvalidTransition ErrorKind = "invalid_transition"
	ErrorKindAlreadyTerminal   ErrorKind = "already_terminal"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindOverflow          ErrorKind = "overflow"
	ErrorKindGeneratorFailure  ErrorKind = "generator_failure"
	ErrorKindCanceled          ErrorKind = "canceled"
)

// ErrorKindOf returns the kind of err, or [ErrorKindUnknown] if err is not part
// of the taxonomy. It returns the empty kind for a nil error.
func ErrorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return ErrorKindInvalidTransition
	case errors.Is(err, ErrAlreadyTerminal):
		return ErrorKindAlreadyTerminal
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrOverflow):
		return ErrorKindOverflow
	case errors.Is(err, ErrGeneratorFailure):
		return ErrorKindGeneratorFailure
	case errors.Is(err, ErrCanceled):
		return ErrorKindCanceled
	}
	return ErrorKindUnknown
}

// InvalidTransitionError represents a state machine violation.
type InvalidTransitionError struct {
	TaskID string
	Op     string
	From   TaskState
}

// Error returns the error message.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: %s not allowed in state %s", e.TaskID, e.Op, e.From)
}

// Is implements error matching for InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// AlreadyTerminalError represents a cancel request on a finished task.
type AlreadyTerminalError struct {
	TaskID string
	State  TaskState
}

// Error returns the error message.
func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("task %s is already %s", e.TaskID, e.State)
}

// Is implements error matching for AlreadyTerminalError.
func (e *AlreadyTerminalError) Is(target error) bool {
	return target == ErrAlreadyTerminal
}

// TaskNotFoundError represents an error when a task is not found.
type TaskNotFoundError struct {
	TaskID string
}

// Error returns the error message.
func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Is implements error matching for TaskNotFoundError.
func (e *TaskNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TimeoutError represents a synchronous wait that exceeded its deadline.
type TimeoutError struct {
	TaskID string
	After  time.Duration
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s: no result after %s", e.TaskID, e.After)
}

// Is implements error matching for TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// GeneratorError carries the failure message recorded on a failed task.
type GeneratorError struct {
	TaskID  string
	Message string
}

// Error returns the error message.
func (e *GeneratorError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// Is implements error matching for GeneratorError.
func (e *GeneratorError) Is(target error) bool {
	return target == ErrGeneratorFailure
}

// TaskCanceledError is returned to a synchronous caller whose task was canceled.
type TaskCanceledError struct {
	TaskID string
}

// Error returns the error message.
func (e *TaskCanceledError) Error() string {
	return fmt.Sprintf("task %s was canceled", e.TaskID)
}

// Is implements error matching for TaskCanceledError.
func (e *TaskCanceledError) Is(target error) bool {
	return target == ErrCanceled
}
