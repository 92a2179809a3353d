// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamTerminated is returned when publishing to a task whose terminal
	// event was already published.
	ErrStreamTerminated = errors.New("event stream already terminated")

	// ErrSubscriptionClosed is returned by Next after the subscription was closed
	// by its owner.
	ErrSubscriptionClosed = errors.New("subscription is closed")

	// ErrBroadcasterClosed is returned when using a closed broadcaster.
	ErrBroadcasterClosed = errors.New("broadcaster is closed")

	// ErrInvalidCapacity is returned for a non-positive subscription capacity.
	ErrInvalidCapacity = errors.New("subscription capacity must be greater than 0")
)

// PublishError represents a failed publish for one task.
type PublishError struct {
	TaskID string
	Err    error
}

// Error returns the error message.
func (e *PublishError) Error() string {
	return fmt.Sprintf("publish event for task %s: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e *PublishError) Unwrap() error {
	return e.Err
}
