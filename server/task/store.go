// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task provides the task store and the lifecycle manager that owns
// the task state machine.
package task

import (
	"context"

	"github.com/go-a2a/agenttask"
)

// Mutation changes a working copy of a task. A non-nil error aborts the
// operation and leaves the stored task unchanged.
type Mutation func(t *agenttask.Task) error

// Store defines the interface for task storage.
//
// Mutations of one task are serialized, mutations of different tasks never
// contend. Every task passed in or returned is a copy.
//
// Operations taking a commit [Mutation] run it after the change was applied
// to the working copy but before the change becomes visible to Get, while
// still holding the per-task lock. The lifecycle manager publishes events
// from there, so readers never observe a state ahead of the event stream.
type Store interface {
	// Create stores task unless a task with the same ID exists, in which case
	// the existing task is returned and created is false. commit may be nil.
	Create(ctx context.Context, task *agenttask.Task, commit Mutation) (stored *agenttask.Task, created bool, err error)

	// Get retrieves a task by its ID.
	// Returns [*agenttask.TaskNotFoundError] if the task doesn't exist.
	Get(ctx context.Context, taskID string) (*agenttask.Task, error)

	// Update applies fn to a working copy of the task and stores the result.
	// fn may append artifacts but must not modify the stored ones.
	Update(ctx context.Context, taskID string, fn Mutation) (*agenttask.Task, error)

	// UpdateStatus transitions the task to state, recording errMsg for the
	// failed state. Transitions outside the state machine return
	// [*agenttask.InvalidTransitionError]. commit may be nil.
	UpdateStatus(ctx context.Context, taskID string, state agenttask.TaskState, errMsg string, commit Mutation) (*agenttask.Task, error)

	// AppendArtifact appends artifact to a working task and returns the
	// stored artifact. commit may be nil.
	AppendArtifact(ctx context.Context, taskID string, artifact *agenttask.Artifact, commit Mutation) (*agenttask.Artifact, error)

	// ListAll returns every task ordered by creation time.
	ListAll(ctx context.Context) ([]*agenttask.Task, error)

	// List returns the tasks of contextID ordered by creation time.
	List(ctx context.Context, contextID string) ([]*agenttask.Task, error)

	// Delete removes a task.
	// Returns [*agenttask.TaskNotFoundError] if the task doesn't exist.
	Delete(ctx context.Context, taskID string) error

	// Len returns the number of stored tasks, counting the ones ListAll returns.
	Len() int
}
