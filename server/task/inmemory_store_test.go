// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-a2a/agenttask"
)

func newTestTask(id, contextID string) *agenttask.Task {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &agenttask.Task{
		ID:        id,
		ContextID: contextID,
		Input:     "hello",
		Status:    agenttask.TaskStateSubmitted,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func mustCreate(t *testing.T, s Store, task *agenttask.Task) {
	t.Helper()

	if _, _, err := s.Create(t.Context(), task, nil); err != nil {
		t.Fatalf("Create(%s) error = %v", task.ID, err)
	}
}

func TestInMemoryTaskStore_Create(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		task        *agenttask.Task
		existing    *agenttask.Task
		commitErr   error
		wantCreated bool
		wantErr     bool
	}{
		"success: new task": {
			task:        newTestTask("task-1", "ctx-1"),
			wantCreated: true,
		},
		"success: existing task is returned unchanged": {
			task:     newTestTask("task-1", "ctx-other"),
			existing: newTestTask("task-1", "ctx-1"),
		},
		"error: nil task": {
			wantErr: true,
		},
		"error: invalid task": {
			task:    &agenttask.Task{ID: "task-1"},
			wantErr: true,
		},
		"error: commit fails": {
			task:      newTestTask("task-1", "ctx-1"),
			commitErr: errors.New("boom"),
			wantErr:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := NewInMemoryTaskStore()
			if tt.existing != nil {
				mustCreate(t, s, tt.existing)
			}

			var commit Mutation
			if tt.commitErr != nil {
				commit = func(*agenttask.Task) error { return tt.commitErr }
			}
			got, created, err := s.Create(t.Context(), tt.task, commit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if tt.commitErr != nil {
					if !errors.Is(err, tt.commitErr) {
						t.Errorf("Create() error = %v, want wrapping %v", err, tt.commitErr)
					}
					if _, err := s.Get(t.Context(), tt.task.ID); !errors.Is(err, agenttask.ErrNotFound) {
						t.Errorf("Get() after failed commit error = %v, want %v", err, agenttask.ErrNotFound)
					}
					if s.Len() != 0 {
						t.Errorf("Len() = %d, want 0", s.Len())
					}
				}
				return
			}

			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}
			want := tt.task
			if tt.existing != nil {
				want = tt.existing
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Create() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInMemoryTaskStore_CommitRunsBeforeVisibility(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")

	var (
		seenDuringCommit error
		lenDuringCommit  int
	)
	_, _, err := s.Create(t.Context(), task, func(*agenttask.Task) error {
		_, seenDuringCommit = s.Get(context.Background(), "task-1")
		lenDuringCommit = s.Len()
		return nil
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !errors.Is(seenDuringCommit, agenttask.ErrNotFound) {
		t.Errorf("Get() during create commit error = %v, want %v", seenDuringCommit, agenttask.ErrNotFound)
	}
	if lenDuringCommit != 0 {
		t.Errorf("Len() during create commit = %d, want 0", lenDuringCommit)
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() after create = %d, want 1", got)
	}

	var statusDuringCommit agenttask.TaskState
	_, err = s.UpdateStatus(t.Context(), "task-1", agenttask.TaskStateWorking, "", func(*agenttask.Task) error {
		got, err := s.Get(context.Background(), "task-1")
		if err != nil {
			return err
		}
		statusDuringCommit = got.Status
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if statusDuringCommit != agenttask.TaskStateSubmitted {
		t.Errorf("status during commit = %s, want %s", statusDuringCommit, agenttask.TaskStateSubmitted)
	}

	got, err := s.Get(t.Context(), "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != agenttask.TaskStateWorking {
		t.Errorf("status after commit = %s, want %s", got.Status, agenttask.TaskStateWorking)
	}
}

func TestInMemoryTaskStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		from      agenttask.TaskState
		to        agenttask.TaskState
		errMsg    string
		wantError string
		wantErr   error
	}{
		"success: submitted to working": {
			from: agenttask.TaskStateSubmitted,
			to:   agenttask.TaskStateWorking,
		},
		"success: working to failed records the message": {
			from:      agenttask.TaskStateWorking,
			to:        agenttask.TaskStateFailed,
			errMsg:    "model unavailable",
			wantError: "model unavailable",
		},
		"success: message ignored for other states": {
			from:   agenttask.TaskStateWorking,
			to:     agenttask.TaskStateCompleted,
			errMsg: "ignored",
		},
		"error: submitted to completed": {
			from:    agenttask.TaskStateSubmitted,
			to:      agenttask.TaskStateCompleted,
			wantErr: agenttask.ErrInvalidTransition,
		},
		"error: out of terminal state": {
			from:    agenttask.TaskStateCanceled,
			to:      agenttask.TaskStateWorking,
			wantErr: agenttask.ErrInvalidTransition,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := NewInMemoryTaskStore()
			task := newTestTask("task-1", "ctx-1")
			task.Status = tt.from
			mustCreate(t, s, task)

			got, err := s.UpdateStatus(t.Context(), "task-1", tt.to, tt.errMsg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateStatus() error = %v, want %v", err, tt.wantErr)
				}
				stored, _ := s.Get(t.Context(), "task-1")
				if stored.Status != tt.from {
					t.Errorf("stored status = %s, want unchanged %s", stored.Status, tt.from)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus() error = %v", err)
			}
			if got.Status != tt.to {
				t.Errorf("Status = %s, want %s", got.Status, tt.to)
			}
			if got.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantError)
			}
			if !got.UpdatedAt.After(task.UpdatedAt) {
				t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, task.UpdatedAt)
			}
		})
	}
}

func TestInMemoryTaskStore_AppendArtifact(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		state    agenttask.TaskState
		artifact *agenttask.Artifact
		wantErr  error
	}{
		"success: working task": {
			state:    agenttask.TaskStateWorking,
			artifact: &agenttask.Artifact{ArtifactID: "a1", Text: "Echo: hello"},
		},
		"error: submitted task": {
			state:    agenttask.TaskStateSubmitted,
			artifact: &agenttask.Artifact{ArtifactID: "a1", Text: "x"},
			wantErr:  agenttask.ErrInvalidTransition,
		},
		"error: completed task is frozen": {
			state:    agenttask.TaskStateCompleted,
			artifact: &agenttask.Artifact{ArtifactID: "a1", Text: "x"},
			wantErr:  agenttask.ErrInvalidTransition,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := NewInMemoryTaskStore()
			task := newTestTask("task-1", "ctx-1")
			task.Status = tt.state
			mustCreate(t, s, task)

			got, err := s.AppendArtifact(t.Context(), "task-1", tt.artifact, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AppendArtifact() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AppendArtifact() error = %v", err)
			}
			if diff := cmp.Diff(tt.artifact, got); diff != "" {
				t.Errorf("AppendArtifact() mismatch (-want +got):\n%s", diff)
			}
			stored, err := s.Get(t.Context(), "task-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := cmp.Diff([]*agenttask.Artifact{tt.artifact}, stored.Artifacts); diff != "" {
				t.Errorf("Artifacts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInMemoryTaskStore_AppendKeepsSnapshots(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")
	task.Status = agenttask.TaskStateWorking
	mustCreate(t, s, task)

	ctx := t.Context()
	for _, text := range []string{"a", "b"} {
		if _, err := s.AppendArtifact(ctx, "task-1", &agenttask.Artifact{ArtifactID: text, Text: text}, nil); err != nil {
			t.Fatalf("AppendArtifact(%s) error = %v", text, err)
		}
	}
	before, err := s.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	errCommit := errors.New("commit failed")
	_, err = s.AppendArtifact(ctx, "task-1", &agenttask.Artifact{ArtifactID: "rejected", Text: "rejected"}, func(*agenttask.Task) error {
		return errCommit
	})
	if !errors.Is(err, errCommit) {
		t.Fatalf("AppendArtifact() error = %v, want %v", err, errCommit)
	}
	if _, err := s.AppendArtifact(ctx, "task-1", &agenttask.Artifact{ArtifactID: "c", Text: "c"}, nil); err != nil {
		t.Fatalf("AppendArtifact(c) error = %v", err)
	}

	after, err := s.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := before.Text(); got != "ab" {
		t.Errorf("earlier snapshot Text() = %q, want %q", got, "ab")
	}
	if got := after.Text(); got != "abc" {
		t.Errorf("Text() = %q, want %q", got, "abc")
	}
}

func TestInMemoryTaskStore_InvalidArtifact(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")
	task.Status = agenttask.TaskStateWorking
	mustCreate(t, s, task)

	_, err := s.AppendArtifact(t.Context(), "task-1", &agenttask.Artifact{}, nil)
	var verr TaskValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("AppendArtifact() error = %v, want TaskValidationError", err)
	}
}

func TestInMemoryTaskStore_CopiesInAndOut(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")
	task.Status = agenttask.TaskStateWorking
	mustCreate(t, s, task)
	task.Input = "changed by caller"

	got, err := s.Get(t.Context(), "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Input != "hello" {
		t.Errorf("Input = %q, want %q", got.Input, "hello")
	}

	a := &agenttask.Artifact{ArtifactID: "a1", Text: "x", Metadata: map[string]any{"k": "v"}}
	if _, err := s.AppendArtifact(t.Context(), "task-1", a, nil); err != nil {
		t.Fatalf("AppendArtifact() error = %v", err)
	}
	a.Metadata["k"] = "changed"

	got, _ = s.Get(t.Context(), "task-1")
	got.Artifacts[0].Text = "changed by reader"

	again, _ := s.Get(t.Context(), "task-1")
	if diff := cmp.Diff(map[string]any{"k": "v"}, again.Artifacts[0].Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if again.Artifacts[0].Text != "x" {
		t.Errorf("Text = %q, want %q", again.Artifacts[0].Text, "x")
	}
}

func TestInMemoryTaskStore_NotFound(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	ctx := t.Context()

	tests := map[string]func() error{
		"Get": func() error {
			_, err := s.Get(ctx, "missing")
			return err
		},
		"Update": func() error {
			_, err := s.Update(ctx, "missing", func(*agenttask.Task) error { return nil })
			return err
		},
		"UpdateStatus": func() error {
			_, err := s.UpdateStatus(ctx, "missing", agenttask.TaskStateWorking, "", nil)
			return err
		},
		"AppendArtifact": func() error {
			_, err := s.AppendArtifact(ctx, "missing", agenttask.NewTextArtifact("x"), nil)
			return err
		},
		"Delete": func() error {
			return s.Delete(ctx, "missing")
		},
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := fn()
			var nf *agenttask.TaskNotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("%s() error = %v, want *TaskNotFoundError", name, err)
			}
			if nf.TaskID != "missing" {
				t.Errorf("TaskID = %q, want %q", nf.TaskID, "missing")
			}
		})
	}
}

func TestInMemoryTaskStore_ListAndDelete(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ctxID := range []string{"ctx-a", "ctx-b", "ctx-a"} {
		task := newTestTask(fmt.Sprintf("task-%d", i), ctxID)
		task.CreatedAt = base.Add(time.Duration(3-i) * time.Minute)
		mustCreate(t, s, task)
	}

	all, err := s.ListAll(t.Context())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	ids := func(tasks []*agenttask.Task) []string {
		out := make([]string, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}
	if diff := cmp.Diff([]string{"task-2", "task-1", "task-0"}, ids(all)); diff != "" {
		t.Errorf("ListAll() order mismatch (-want +got):\n%s", diff)
	}

	inA, err := s.List(t.Context(), "ctx-a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]string{"task-2", "task-0"}, ids(inA), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("List(ctx-a) mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(t.Context(), "task-2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := s.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if _, err := s.Get(t.Context(), "task-2"); !errors.Is(err, agenttask.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want %v", err, agenttask.ErrNotFound)
	}
}

func TestInMemoryTaskStore_ConcurrentMutations(t *testing.T) {
	t.Parallel()

	s := NewInMemoryTaskStore()
	const (
		tasks     = 8
		artifacts = 50
	)
	for i := range tasks {
		task := newTestTask(fmt.Sprintf("task-%d", i), "ctx")
		task.Status = agenttask.TaskStateWorking
		mustCreate(t, s, task)
	}

	var wg sync.WaitGroup
	for i := range tasks {
		for j := range artifacts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a := &agenttask.Artifact{ArtifactID: fmt.Sprintf("a-%d", j), Text: "x"}
				if _, err := s.AppendArtifact(t.Context(), fmt.Sprintf("task-%d", i), a, nil); err != nil {
					t.Errorf("AppendArtifact() error = %v", err)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range artifacts {
				if _, err := s.Get(t.Context(), fmt.Sprintf("task-%d", i)); err != nil {
					t.Errorf("Get() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for i := range tasks {
		got, err := s.Get(t.Context(), fmt.Sprintf("task-%d", i))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.Artifacts) != artifacts {
			t.Errorf("task-%d has %d artifacts, want %d", i, len(got.Artifacts), artifacts)
		}
	}
}

// appendAllocs reports the allocations of one AppendArtifact on a task that
// already holds n artifacts.
func appendAllocs(t *testing.T, n int) float64 {
	t.Helper()

	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")
	task.Status = agenttask.TaskStateWorking
	mustCreate(t, s, task)

	ctx := context.Background()
	a := &agenttask.Artifact{ArtifactID: "a", Text: "x"}
	for range n {
		if _, err := s.AppendArtifact(ctx, "task-1", a, nil); err != nil {
			t.Fatalf("AppendArtifact() error = %v", err)
		}
	}
	return testing.AllocsPerRun(100, func() {
		if _, err := s.AppendArtifact(ctx, "task-1", a, nil); err != nil {
			t.Fatalf("AppendArtifact() error = %v", err)
		}
	})
}

func TestInMemoryTaskStore_AppendCostDoesNotGrow(t *testing.T) {
	small := appendAllocs(t, 10)
	large := appendAllocs(t, 10_000)
	if large > small+1 {
		t.Errorf("allocations per append = %v with 10,000 artifacts, want about %v as with 10", large, small)
	}
}

func BenchmarkInMemoryTaskStore_AppendArtifact(b *testing.B) {
	s := NewInMemoryTaskStore()
	task := newTestTask("task-1", "ctx-1")
	task.Status = agenttask.TaskStateWorking
	if _, _, err := s.Create(context.Background(), task, nil); err != nil {
		b.Fatalf("Create() error = %v", err)
	}

	a := &agenttask.Artifact{ArtifactID: "a", Text: "x"}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := s.AppendArtifact(context.Background(), "task-1", a, nil); err != nil {
			b.Fatalf("AppendArtifact() error = %v", err)
		}
	}
}
