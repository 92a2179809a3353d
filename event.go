// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agenttask

import (
	"fmt"
	"time"
)

// EventKind discriminates the payload carried by an [Event].
type EventKind string

const (
	// EventKindStatusChanged is the kind of events carrying a [*StatusChanged] payload.
	EventKindStatusChanged EventKind = "status_changed"

	// EventKindArtifactAppended is the kind of events carrying an [*ArtifactAppended] payload.
	EventKindArtifactAppended EventKind = "artifact_appended"
)

// Payload is the closed set of event payloads: [*StatusChanged] and [*ArtifactAppended].
//
// The unexported method keeps the set closed, so a type switch over both
// variants is exhaustive.
type Payload interface {
	// Kind returns the discriminator of the payload.
	Kind() EventKind

	isPayload()
}

// StatusChanged reports a task state transition.
type StatusChanged struct {
	Status TaskState

	// Error is the failure message when Status is failed.
	Error string
}

var _ Payload = (*StatusChanged)(nil)

// Kind implements [Payload].
func (*StatusChanged) Kind() EventKind { return EventKindStatusChanged }

func (*StatusChanged) isPayload() {}

// ArtifactAppended reports an artifact appended to a working task.
type ArtifactAppended struct {
	Artifact *Artifact
}

var _ Payload = (*ArtifactAppended)(nil)

// Kind implements [Payload].
func (*ArtifactAppended) Kind() EventKind { return EventKindArtifactAppended }

func (*ArtifactAppended) isPayload() {}

// Event is a notification of a task's state change or artifact addition.
//
// Events of one task are totally ordered by Sequence, which starts at 1 and
// increases by one for every event emitted for that task.
type Event struct {
	TaskID    string
	Sequence  uint64
	Timestamp time.Time
	Payload   Payload
}

// Kind returns the kind of the event payload, or the empty kind if there is none.
func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// IsFinal reports whether e is the terminal event of its task stream.
func (e Event) IsFinal() bool {
	sc, ok := e.Payload.(*StatusChanged)
	return ok && sc.Status.IsTerminal()
}

// Status returns the state carried by a status_changed event.
func (e Event) Status() (TaskState, bool) {
	if sc, ok := e.Payload.(*StatusChanged); ok {
		return sc.Status, true
	}
	return "", false
}

// Artifact returns the artifact carried by an artifact_appended event.
func (e Event) Artifact() (*Artifact, bool) {
	if aa, ok := e.Payload.(*ArtifactAppended); ok {
		return aa.Artifact, true
	}
	return nil, false
}

// Validate ensures the Event is valid.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return fmt.Errorf("event task ID cannot be empty")
	}
	switch p := e.Payload.(type) {
	case *StatusChanged:
		if !p.Status.Valid() {
			return fmt.Errorf("event for task %s: unknown status %q", e.TaskID, p.Status)
		}
	case *ArtifactAppended:
		if err := p.Artifact.Validate(); err != nil {
			return fmt.Errorf("event for task %s: %w", e.TaskID, err)
		}
	case nil:
		return fmt.Errorf("event for task %s: payload cannot be nil", e.TaskID)
	}
	return nil
}

// String returns a string representation of the Event.
func (e Event) String() string {
	switch p := e.Payload.(type) {
	case *StatusChanged:
		return fmt.Sprintf("Event{TaskID: %s, Sequence: %d, Status: %s}", e.TaskID, e.Sequence, p.Status)
	case *ArtifactAppended:
		id := "nil"
		if p.Artifact != nil {
			id = p.Artifact.ArtifactID
		}
		return fmt.Sprintf("Event{TaskID: %s, Sequence: %d, Artifact: %s}", e.TaskID, e.Sequence, id)
	}
	return fmt.Sprintf("Event{TaskID: %s, Sequence: %d}", e.TaskID, e.Sequence)
}
