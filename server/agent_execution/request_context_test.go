// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/agenttask"
)

type listerFunc func(ctx context.Context, contextID string) ([]*agenttask.Task, error)

func (f listerFunc) List(ctx context.Context, contextID string) ([]*agenttask.Task, error) {
	return f(ctx, contextID)
}

func TestSimpleRequestContextBuilder_Build(t *testing.T) {
	t.Parallel()

	current := agenttask.NewTask("now", "ctx-1")
	done := agenttask.NewTask("before", "ctx-1")
	done.Status = agenttask.TaskStateCompleted
	running := agenttask.NewTask("other", "ctx-1")
	running.Status = agenttask.TaskStateWorking

	tests := map[string]struct {
		lister      TaskLister
		wantRelated []string
		wantErr     bool
	}{
		"success: without lister": {},
		"success: attaches finished tasks of the context": {
			lister: listerFunc(func(_ context.Context, contextID string) ([]*agenttask.Task, error) {
				if contextID != "ctx-1" {
					return nil, nil
				}
				return []*agenttask.Task{done, running, current}, nil
			}),
			wantRelated: []string{done.ID},
		},
		"error: lister fails": {
			lister: listerFunc(func(context.Context, string) ([]*agenttask.Task, error) {
				return nil, errors.New("unavailable")
			}),
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rc, err := NewSimpleRequestContextBuilder(tt.lister).Build(t.Context(), current)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var got []string
			for _, rt := range rc.RelatedTasks() {
				got = append(got, rt.ID)
			}
			if diff := cmp.Diff(tt.wantRelated, got); diff != "" {
				t.Errorf("RelatedTasks() mismatch (-want +got):\n%s", diff)
			}
			if rc.TaskID() != current.ID || rc.Input() != "now" {
				t.Errorf("RequestContext = {%s %s}, want {%s now}", rc.TaskID(), rc.Input(), current.ID)
			}
		})
	}
}

func TestRequestContext_AttachRelatedTask(t *testing.T) {
	t.Parallel()

	current := agenttask.NewTask("now", "ctx-1")
	rc := NewRequestContext(current)

	if err := rc.AttachRelatedTask(nil); err == nil {
		t.Error("AttachRelatedTask(nil) error = nil, want error")
	}
	if err := rc.AttachRelatedTask(current); err == nil {
		t.Error("AttachRelatedTask(self) error = nil, want error")
	}
	if err := rc.AttachRelatedTask(&agenttask.Task{ID: "x"}); err == nil {
		t.Error("AttachRelatedTask(invalid) error = nil, want error")
	}

	other := agenttask.NewTask("before", "ctx-1")
	if err := rc.AttachRelatedTask(other); err != nil {
		t.Fatalf("AttachRelatedTask() error = %v", err)
	}
	rc.RelatedTasks()[0].Input = "changed"
	if got := rc.RelatedTasks()[0].Input; got != "before" {
		t.Errorf("related Input = %q, want %q", got, "before")
	}

	ctx := WithRequestContext(t.Context(), rc)
	got, ok := RequestContextFrom(ctx)
	if !ok || got != rc {
		t.Errorf("RequestContextFrom() = %v, %v, want the attached context", got, ok)
	}
	if _, ok := RequestContextFrom(t.Context()); ok {
		t.Error("RequestContextFrom() on bare context ok = true, want false")
	}
}

func TestStreamingGeneratorFunc_Generate(t *testing.T) {
	t.Parallel()

	gen := StreamingGeneratorFunc(func(_ context.Context, input string, emit func(string) error) error {
		for _, s := range []string{"Echo", ": ", input} {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := gen.Generate(t.Context(), "hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Echo: hello" {
		t.Errorf("Generate() = %q, want %q", got, "Echo: hello")
	}

	failing := StreamingGeneratorFunc(func(context.Context, string, func(string) error) error {
		return errors.New("boom")
	})
	if _, err := failing.Generate(t.Context(), "x"); err == nil {
		t.Error("Generate() error = nil, want error")
	}
}
