// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-a2a/agenttask"
)

// RequestContext holds information about the task a generator is running for.
//
// It is attached to the context passed to the generator and retrieved with
// [RequestContextFrom].
type RequestContext struct {
	taskID       string
	contextID    string
	input        string
	relatedTasks []*agenttask.Task
}

// NewRequestContext creates a new RequestContext for task.
func NewRequestContext(task *agenttask.Task) *RequestContext {
	return &RequestContext{
		taskID:    task.ID,
		contextID: task.ContextID,
		input:     task.Input,
	}
}

// TaskID returns the ID of the task.
func (rc *RequestContext) TaskID() string { return rc.taskID }

// ContextID returns the ID of the conversation context.
func (rc *RequestContext) ContextID() string { return rc.contextID }

// Input returns the input text of the task.
func (rc *RequestContext) Input() string { return rc.input }

// RelatedTasks returns a copy of the other tasks of the same context, oldest first.
func (rc *RequestContext) RelatedTasks() []*agenttask.Task {
	tasks := make([]*agenttask.Task, len(rc.relatedTasks))
	for i, t := range rc.relatedTasks {
		tasks[i] = t.Clone()
	}
	return tasks
}

// AttachRelatedTask attaches a related task to the context.
func (rc *RequestContext) AttachRelatedTask(task *agenttask.Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if task.ID == rc.taskID {
		return fmt.Errorf("task %s cannot be related to itself", task.ID)
	}
	rc.relatedTasks = append(rc.relatedTasks, task.Clone())
	return nil
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext carried by ctx.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// RequestContextBuilder builds the [RequestContext] supplied to a generator.
type RequestContextBuilder interface {
	Build(ctx context.Context, task *agenttask.Task) (*RequestContext, error)
}

// TaskLister lists the tasks of a conversation context.
type TaskLister interface {
	List(ctx context.Context, contextID string) ([]*agenttask.Task, error)
}

// SimpleRequestContextBuilder is the default [RequestContextBuilder].
//
// When constructed with a [TaskLister] it attaches the finished tasks of the
// same context as related tasks, so a generator can see the conversation so far.
type SimpleRequestContextBuilder struct {
	lister TaskLister
}

var _ RequestContextBuilder = (*SimpleRequestContextBuilder)(nil)

// NewSimpleRequestContextBuilder creates a new SimpleRequestContextBuilder.
// lister may be nil, in which case no related tasks are attached.
func NewSimpleRequestContextBuilder(lister TaskLister) *SimpleRequestContextBuilder {
	return &SimpleRequestContextBuilder{lister: lister}
}

// Build creates a RequestContext for task.
func (b *SimpleRequestContextBuilder) Build(ctx context.Context, task *agenttask.Task) (*RequestContext, error) {
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}

	rc := NewRequestContext(task)
	if b.lister == nil {
		return rc, nil
	}

	tasks, err := b.lister.List(ctx, task.ContextID)
	if err != nil {
		return nil, fmt.Errorf("failed to list related tasks: %w", err)
	}
	for _, t := range tasks {
		if t.ID == task.ID || !t.Status.IsTerminal() {
			continue
		}
		if err := rc.AttachRelatedTask(t); err != nil {
			return nil, fmt.Errorf("failed to attach related task: %w", err)
		}
	}
	return rc, nil
}
