// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/internal/telemetry"
)

// Publisher receives the events emitted by the [Manager] on every transition.
//
// Publish must not block; it is called while the task lock is held.
type Publisher interface {
	Publish(ctx context.Context, taskID string, payload agenttask.Payload) (agenttask.Event, error)
}

// Manager owns the task state machine and is the only component that
// transitions tasks.
//
//	submitted -> working -> completed | failed | canceled
//	submitted -> failed | canceled
//
// Every transition validates the current state, publishes its event and
// stores the new state as one unit under the per-task lock of the [Store].
type Manager struct {
	store     Store
	publisher Publisher

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	now     func() time.Time
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithLogger sets the logger for the Manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTracer sets the tracer for the Manager.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithMetrics sets the metric instruments of the Manager.
func WithMetrics(metrics *telemetry.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a new Manager storing tasks in store and publishing
// lifecycle events to publisher.
func NewManager(store Store, publisher Publisher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.tracer == nil {
		m.tracer = telemetry.Tracer(nil)
	}
	if m.metrics == nil {
		m.metrics = telemetry.NewMetrics(nil)
	}
	return m
}

// Store returns the task store of the Manager.
func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) startSpan(ctx context.Context, op, taskID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "agenttask.task_manager."+op,
		trace.WithAttributes(
			telemetry.AttrTaskID.String(taskID),
			telemetry.AttrOp.String(op),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publishStatus returns a commit that emits the status_changed event of the
// updated task.
func (m *Manager) publishStatus(ctx context.Context) Mutation {
	return func(t *agenttask.Task) error {
		ev, err := m.publisher.Publish(ctx, t.ID, &agenttask.StatusChanged{Status: t.Status, Error: t.Error})
		if err != nil {
			return NewTaskManagerError("publish", t.ID, err)
		}
		m.logger.DebugContext(ctx, "event published", "task_id", t.ID, "sequence", ev.Sequence, "state", t.Status)
		return nil
	}
}

// publishArtifact returns a commit that emits the artifact_appended event of
// the last artifact of the updated task.
func (m *Manager) publishArtifact(ctx context.Context) Mutation {
	return func(t *agenttask.Task) error {
		a := t.Artifacts[len(t.Artifacts)-1]
		ev, err := m.publisher.Publish(ctx, t.ID, &agenttask.ArtifactAppended{Artifact: a})
		if err != nil {
			return NewTaskManagerError("publish", t.ID, err)
		}
		m.logger.DebugContext(ctx, "event published", "task_id", t.ID, "sequence", ev.Sequence, "artifact_id", a.ArtifactID)
		return nil
	}
}

// Submit creates task in the submitted state and emits its first event.
//
// Submitting a task whose ID already exists is a no-op: the stored task is
// returned with created set to false and no event is emitted.
func (m *Manager) Submit(ctx context.Context, task *agenttask.Task) (stored *agenttask.Task, created bool, err error) {
	if task == nil {
		return nil, false, NewTaskValidationError("", errNilTask)
	}

	ctx, span := m.startSpan(ctx, "Submit", task.ID)
	defer func() { endSpan(span, err) }()

	if task.Status == "" {
		task = task.Clone()
		task.Status = agenttask.TaskStateSubmitted
	}
	if task.Status != agenttask.TaskStateSubmitted || len(task.Artifacts) > 0 {
		return nil, false, &agenttask.InvalidTransitionError{TaskID: task.ID, Op: "submit", From: task.Status}
	}

	stored, created, err = m.store.Create(ctx, task, m.publishStatus(ctx))
	if err != nil {
		return nil, false, err
	}

	if created {
		m.metrics.TaskSubmitted(ctx)
		m.metrics.Transition(ctx, agenttask.TaskStateSubmitted.String())
		m.logger.InfoContext(ctx, "task submitted", "task_id", stored.ID, "context_id", stored.ContextID)
	} else {
		m.logger.DebugContext(ctx, "task already submitted", "task_id", stored.ID, "state", stored.Status)
	}
	return stored, created, nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(ctx context.Context, taskID string) (*agenttask.Task, error) {
	return m.store.Get(ctx, taskID)
}

// transition moves the task to state through the store.
func (m *Manager) transition(ctx context.Context, op, taskID string, state agenttask.TaskState, errMsg string) (t *agenttask.Task, err error) {
	ctx, span := m.startSpan(ctx, op, taskID)
	defer func() { endSpan(span, err) }()

	t, err = m.store.UpdateStatus(ctx, taskID, state, errMsg, m.publishStatus(ctx))
	if err != nil {
		return nil, err
	}

	m.metrics.Transition(ctx, state.String())
	m.logger.InfoContext(ctx, "task state changed", "task_id", taskID, "state", state)
	return t, nil
}

// StartWork moves a submitted task to working. A task that is already
// working or terminal yields [*agenttask.InvalidTransitionError].
func (m *Manager) StartWork(ctx context.Context, taskID string) (*agenttask.Task, error) {
	return m.transition(ctx, "StartWork", taskID, agenttask.TaskStateWorking, "")
}

// AppendArtifact appends artifact to a working task, emits an
// artifact_appended event and returns the stored artifact.
func (m *Manager) AppendArtifact(ctx context.Context, taskID string, artifact *agenttask.Artifact) (a *agenttask.Artifact, err error) {
	ctx, span := m.startSpan(ctx, "AppendArtifact", taskID)
	defer func() { endSpan(span, err) }()

	a, err = m.store.AppendArtifact(ctx, taskID, artifact, m.publishArtifact(ctx))
	if err != nil {
		return nil, err
	}

	m.logger.DebugContext(ctx, "artifact appended", "task_id", taskID, "artifact_id", a.ArtifactID)
	return a, nil
}

// Complete moves a working task to completed.
func (m *Manager) Complete(ctx context.Context, taskID string) (*agenttask.Task, error) {
	return m.transition(ctx, "Complete", taskID, agenttask.TaskStateCompleted, "")
}

// Fail moves a submitted or working task to failed and records message.
func (m *Manager) Fail(ctx context.Context, taskID, message string) (*agenttask.Task, error) {
	return m.transition(ctx, "Fail", taskID, agenttask.TaskStateFailed, message)
}

// Cancel moves a submitted or working task to canceled.
//
// Canceling a task that already reached a terminal state returns
// [*agenttask.AlreadyTerminalError] and leaves the task untouched.
func (m *Manager) Cancel(ctx context.Context, taskID string) (t *agenttask.Task, err error) {
	ctx, span := m.startSpan(ctx, "Cancel", taskID)
	defer func() { endSpan(span, err) }()

	commit := m.publishStatus(ctx)
	t, err = m.store.Update(ctx, taskID, func(t *agenttask.Task) error {
		if t.Status.IsTerminal() {
			return &agenttask.AlreadyTerminalError{TaskID: taskID, State: t.Status}
		}
		t.Status = agenttask.TaskStateCanceled
		t.UpdatedAt = m.now().UTC()
		if err := commit(t); err != nil {
			return NewTaskStoreError("commit", taskID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.Transition(ctx, agenttask.TaskStateCanceled.String())
	m.logger.InfoContext(ctx, "task canceled", "task_id", taskID)
	return t, nil
}
