// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agenttask provides the data model of long-running agent tasks:
// the task record and its lifecycle states, result artifacts, and the ordered
// events emitted while a task is executed.
package agenttask

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been submitted.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task is being worked on.
	TaskStateWorking TaskState = "working"

	// TaskStateCompleted indicates the task has been completed.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task has failed.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task has been canceled.
	TaskStateCanceled TaskState = "canceled"
)

// IsTerminal reports whether no further transition is permitted out of s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from s to next.
//
//	submitted -> working | failed | canceled
//	working   -> completed | failed | canceled
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskStateSubmitted:
		return next == TaskStateWorking || next == TaskStateFailed || next == TaskStateCanceled
	case TaskStateWorking:
		return next == TaskStateCompleted || next == TaskStateFailed || next == TaskStateCanceled
	}
	return false
}

// String implements [fmt.Stringer].
func (s TaskState) String() string {
	return string(s)
}

// Task represents a unit of work tracked through the lifecycle state machine.
type Task struct {
	// ID is the unique identifier of the task. It never changes after creation.
	ID string `json:"id"`

	// ContextID groups related tasks, e.g. one conversation.
	ContextID string `json:"contextId"`

	// Input is the message text the task was submitted with.
	Input string `json:"input,omitempty"`

	// Status is the current lifecycle state.
	Status TaskState `json:"status"`

	// Artifacts are the ordered result fragments. They are appended while the
	// task is working and frozen once it reaches a terminal state.
	Artifacts []*Artifact `json:"artifacts,omitzero"`

	// Error holds the failure message. It is only set when Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// NewTask creates a new Task in the submitted state for the given input.
//
// If contextID is empty a new one is generated.
func NewTask(input, contextID string) *Task {
	if contextID == "" {
		contextID = uuid.NewString()
	}

	now := time.Now().UTC()
	return &Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Input:     input,
		Status:    TaskStateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate ensures the Task is in a consistent state.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if t.ContextID == "" {
		return fmt.Errorf("task %s: context ID cannot be empty", t.ID)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	if t.Error != "" && t.Status != TaskStateFailed {
		return fmt.Errorf("task %s: error set on task in state %s", t.ID, t.Status)
	}
	for i, artifact := range t.Artifacts {
		if err := artifact.Validate(); err != nil {
			return fmt.Errorf("task %s: artifact at index %d is invalid: %w", t.ID, i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	c := *t
	if t.Artifacts != nil {
		c.Artifacts = make([]*Artifact, len(t.Artifacts))
		for i, artifact := range t.Artifacts {
			c.Artifacts[i] = artifact.Clone()
		}
	}
	return &c
}

// Text concatenates the text of all artifacts in order.
func (t *Task) Text() string {
	n := 0
	for _, artifact := range t.Artifacts {
		n += len(artifact.Text)
	}
	b := make([]byte, 0, n)
	for _, artifact := range t.Artifacts {
		b = append(b, artifact.Text...)
	}
	return string(b)
}

// ArtifactIDs returns the IDs of the task artifacts in order.
func (t *Task) ArtifactIDs() []string {
	ids := make([]string, 0, len(t.Artifacts))
	for _, artifact := range t.Artifacts {
		ids = append(ids, artifact.ArtifactID)
	}
	return ids
}
