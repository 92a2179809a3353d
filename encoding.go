// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agenttask

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
)

// eventJSON is the flat JSON shape of an [Event].
type eventJSON struct {
	TaskID    string    `json:"taskId"`
	Kind      EventKind `json:"kind"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Status    TaskState `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Artifact  *Artifact `json:"artifact,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	v := eventJSON{
		TaskID:    e.TaskID,
		Kind:      e.Kind(),
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp,
	}
	switch p := e.Payload.(type) {
	case *StatusChanged:
		v.Status = p.Status
		v.Error = p.Error
	case *ArtifactAppended:
		v.Artifact = p.Artifact
	case nil:
		return nil, fmt.Errorf("event for task %s has no payload", e.TaskID)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var v eventJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*e = Event{
		TaskID:    v.TaskID,
		Sequence:  v.Sequence,
		Timestamp: v.Timestamp,
	}
	switch v.Kind {
	case EventKindStatusChanged:
		e.Payload = &StatusChanged{Status: v.Status, Error: v.Error}
	case EventKindArtifactAppended:
		if v.Artifact == nil {
			return fmt.Errorf("artifact_appended event for task %s has no artifact", v.TaskID)
		}
		e.Payload = &ArtifactAppended{Artifact: v.Artifact}
	default:
		return fmt.Errorf("unknown event kind %q", v.Kind)
	}
	return nil
}

// MarshalTask encodes a task snapshot as JSON.
func MarshalTask(t *Task) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	return json.Marshal(t)
}
