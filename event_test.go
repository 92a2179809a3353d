// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agenttask

import (
	"testing"
)

func TestEvent_Accessors(t *testing.T) {
	t.Parallel()

	artifact := NewTextArtifact("hello")
	tests := map[string]struct {
		ev           Event
		wantKind     EventKind
		wantFinal    bool
		wantStatus   TaskState
		wantArtifact *Artifact
	}{
		"status submitted": {
			ev:         Event{TaskID: "t1", Sequence: 1, Payload: &StatusChanged{Status: TaskStateSubmitted}},
			wantKind:   EventKindStatusChanged,
			wantStatus: TaskStateSubmitted,
		},
		"status completed is final": {
			ev:         Event{TaskID: "t1", Sequence: 4, Payload: &StatusChanged{Status: TaskStateCompleted}},
			wantKind:   EventKindStatusChanged,
			wantFinal:  true,
			wantStatus: TaskStateCompleted,
		},
		"status canceled is final": {
			ev:         Event{TaskID: "t1", Sequence: 2, Payload: &StatusChanged{Status: TaskStateCanceled}},
			wantKind:   EventKindStatusChanged,
			wantFinal:  true,
			wantStatus: TaskStateCanceled,
		},
		"artifact": {
			ev:           Event{TaskID: "t1", Sequence: 3, Payload: &ArtifactAppended{Artifact: artifact}},
			wantKind:     EventKindArtifactAppended,
			wantArtifact: artifact,
		},
		"no payload": {
			ev: Event{TaskID: "t1"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.ev.Kind(); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if got := tt.ev.IsFinal(); got != tt.wantFinal {
				t.Errorf("IsFinal() = %v, want %v", got, tt.wantFinal)
			}
			status, _ := tt.ev.Status()
			if status != tt.wantStatus {
				t.Errorf("Status() = %q, want %q", status, tt.wantStatus)
			}
			a, _ := tt.ev.Artifact()
			if a != tt.wantArtifact {
				t.Errorf("Artifact() = %v, want %v", a, tt.wantArtifact)
			}
		})
	}
}

func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		ev      Event
		wantErr bool
	}{
		"success: status": {
			ev: Event{TaskID: "t1", Payload: &StatusChanged{Status: TaskStateWorking}},
		},
		"success: artifact": {
			ev: Event{TaskID: "t1", Payload: &ArtifactAppended{Artifact: NewTextArtifact("x")}},
		},
		"error: empty task ID": {
			ev:      Event{Payload: &StatusChanged{Status: TaskStateWorking}},
			wantErr: true,
		},
		"error: unknown status": {
			ev:      Event{TaskID: "t1", Payload: &StatusChanged{Status: "paused"}},
			wantErr: true,
		},
		"error: nil artifact": {
			ev:      Event{TaskID: "t1", Payload: &ArtifactAppended{}},
			wantErr: true,
		},
		"error: nil payload": {
			ev:      Event{TaskID: "t1"},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if err := tt.ev.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvent_String(t *testing.T) {
	t.Parallel()

	ev := Event{TaskID: "t1", Sequence: 2, Payload: &StatusChanged{Status: TaskStateWorking}}
	if got, want := ev.String(), "Event{TaskID: t1, Sequence: 2, Status: working}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
