// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-a2a/agenttask"
)

// InMemoryTaskStore is an in-memory implementation of [Store].
// Task data is lost when the process stops.
//
// The map lock is only held for lookups and inserts. Every task has its own
// entry lock serializing its mutations, and its current snapshot is published
// atomically, so Get never waits for a mutation in progress.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*entry
	now   func() time.Time
}

var _ Store = (*InMemoryTaskStore)(nil)

// entry holds one task.
type entry struct {
	mu sync.Mutex

	// snapshot is nil while the creating commit runs, after a failed create
	// and after Delete.
	snapshot atomic.Pointer[agenttask.Task]
}

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*entry),
		now:   time.Now,
	}
}

// Create stores a copy of task.
func (s *InMemoryTaskStore) Create(ctx context.Context, task *agenttask.Task, commit Mutation) (*agenttask.Task, bool, error) {
	if task == nil {
		return nil, false, fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return nil, false, NewTaskValidationError(task.ID, err)
	}

	s.mu.Lock()
	if e, ok := s.tasks[task.ID]; ok {
		s.mu.Unlock()

		// wait for a concurrent create of the same task to settle
		e.mu.Lock()
		existing := e.snapshot.Load()
		e.mu.Unlock()
		if existing == nil {
			return nil, false, NewTaskStoreError("create", task.ID, fmt.Errorf("task is being removed"))
		}
		return existing.Clone(), false, nil
	}
	e := &entry{}
	e.mu.Lock()
	s.tasks[task.ID] = e
	s.mu.Unlock()
	defer e.mu.Unlock()

	working := task.Clone()
	if commit != nil {
		if err := commit(working); err != nil {
			s.mu.Lock()
			if s.tasks[task.ID] == e {
				delete(s.tasks, task.ID)
			}
			s.mu.Unlock()
			return nil, false, NewTaskStoreError("create", task.ID, err)
		}
	}
	e.snapshot.Store(working)

	return working.Clone(), true, nil
}

// Get retrieves a copy of the task.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*agenttask.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, &agenttask.TaskNotFoundError{TaskID: taskID}
	}

	t := e.snapshot.Load()
	if t == nil {
		return nil, &agenttask.TaskNotFoundError{TaskID: taskID}
	}
	return t.Clone(), nil
}

// Update applies fn to a working copy of the task under the task lock.
//
// Errors returned by fn are returned unchanged.
func (s *InMemoryTaskStore) Update(ctx context.Context, taskID string, fn Mutation) (*agenttask.Task, error) {
	t, err := s.mutate(taskID, "update", fn)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// mutate applies fn to a working copy of the task under the task lock and
// publishes the result as the new snapshot, which it returns uncloned.
//
// The working copy shares the stored artifacts and their backing array.
// Snapshots only read up to their own length and stored artifacts are never
// modified, so appending to the working copy does not copy the artifacts.
func (s *InMemoryTaskStore) mutate(taskID, op string, fn Mutation) (*agenttask.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, &agenttask.TaskNotFoundError{TaskID: taskID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.snapshot.Load()
	if current == nil {
		return nil, &agenttask.TaskNotFoundError{TaskID: taskID}
	}

	working := *current
	if err := fn(&working); err != nil {
		return nil, err
	}
	if working.ID != current.ID || working.ContextID != current.ContextID {
		return nil, NewTaskStoreError(op, taskID, fmt.Errorf("task identity cannot change"))
	}
	e.snapshot.Store(&working)

	return &working, nil
}

// UpdateStatus transitions the task to state.
func (s *InMemoryTaskStore) UpdateStatus(ctx context.Context, taskID string, state agenttask.TaskState, errMsg string, commit Mutation) (*agenttask.Task, error) {
	return s.Update(ctx, taskID, func(t *agenttask.Task) error {
		if !t.Status.CanTransition(state) {
			return &agenttask.InvalidTransitionError{TaskID: taskID, Op: "transition to " + state.String(), From: t.Status}
		}
		t.Status = state
		t.Error = ""
		if state == agenttask.TaskStateFailed {
			t.Error = errMsg
		}
		t.UpdatedAt = s.now().UTC()
		return s.commit(commit, t)
	})
}

// AppendArtifact appends a copy of artifact to a working task and returns
// another copy of it. The cost does not grow with the number of artifacts
// already stored.
func (s *InMemoryTaskStore) AppendArtifact(ctx context.Context, taskID string, artifact *agenttask.Artifact, commit Mutation) (*agenttask.Artifact, error) {
	if err := artifact.Validate(); err != nil {
		return nil, NewTaskValidationError(taskID, err)
	}

	stored := artifact.Clone()
	if _, err := s.mutate(taskID, "append artifact", func(t *agenttask.Task) error {
		if t.Status != agenttask.TaskStateWorking {
			return &agenttask.InvalidTransitionError{TaskID: taskID, Op: "append artifact", From: t.Status}
		}
		t.Artifacts = append(t.Artifacts, stored)
		t.UpdatedAt = s.now().UTC()
		return s.commit(commit, t)
	}); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (s *InMemoryTaskStore) commit(commit Mutation, t *agenttask.Task) error {
	if commit == nil {
		return nil
	}
	if err := commit(t); err != nil {
		return NewTaskStoreError("commit", t.ID, err)
	}
	return nil
}

// snapshots returns the current snapshots of all visible tasks.
func (s *InMemoryTaskStore) snapshots(keep func(*agenttask.Task) bool) []*agenttask.Task {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	tasks := make([]*agenttask.Task, 0, len(entries))
	for _, e := range entries {
		t := e.snapshot.Load()
		if t == nil || !keep(t) {
			continue
		}
		tasks = append(tasks, t.Clone())
	}
	slices.SortFunc(tasks, func(a, b *agenttask.Task) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return tasks
}

// ListAll returns every task ordered by creation time.
func (s *InMemoryTaskStore) ListAll(ctx context.Context) ([]*agenttask.Task, error) {
	return s.snapshots(func(*agenttask.Task) bool { return true }), nil
}

// List returns the tasks of contextID ordered by creation time.
// An empty contextID returns every task.
func (s *InMemoryTaskStore) List(ctx context.Context, contextID string) ([]*agenttask.Task, error) {
	return s.snapshots(func(t *agenttask.Task) bool {
		return contextID == "" || t.ContextID == contextID
	}), nil
}

// Delete removes a task, waiting for a mutation in progress to finish.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return &agenttask.TaskNotFoundError{TaskID: taskID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snapshot.Load() == nil {
		return &agenttask.TaskNotFoundError{TaskID: taskID}
	}

	s.mu.Lock()
	if s.tasks[taskID] == e {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()
	e.snapshot.Store(nil)

	return nil
}

// Len returns the number of visible tasks, the ones ListAll returns.
func (s *InMemoryTaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.tasks {
		if e.snapshot.Load() != nil {
			n++
		}
	}
	return n
}
