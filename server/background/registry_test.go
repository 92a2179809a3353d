// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package background

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-a2a/agenttask"
)

func newTestRegistry(opts ...Option) *Registry[string] {
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return NewRegistry[string](opts...)
}

// pollDone polls handleID until it is done.
func pollDone(t *testing.T, r *Registry[string], handleID string) Result[string] {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := r.Poll(handleID)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if res.Done() {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatalf("handle %s still pending", handleID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegistry_StartAndPoll(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := map[string]struct {
		work Work[string]
		want Result[string]
	}{
		"success: completed": {
			work: func(context.Context) (string, error) { return "Echo: hello", nil },
			want: Result[string]{Status: StatusCompleted, Value: "Echo: hello"},
		},
		"error: failed": {
			work: func(context.Context) (string, error) { return "", boom },
			want: Result[string]{Status: StatusFailed, Err: boom},
		},
		"error: panic": {
			work: func(context.Context) (string, error) { panic("kaput") },
			want: Result[string]{Status: StatusFailed, Err: errors.New("background work panicked: kaput")},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := newTestRegistry()
			id, err := r.Start(t.Context(), tt.work)
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			got := pollDone(t, r, id)
			opt := cmp.Comparer(func(a, b error) bool {
				if a == nil || b == nil {
					return a == b
				}
				return a.Error() == b.Error()
			})
			if diff := cmp.Diff(tt.want, got, opt); diff != "" {
				t.Errorf("Poll() mismatch (-want +got):\n%s", diff)
			}

			// dropped after the first done poll
			if _, err := r.Poll(id); !errors.Is(err, agenttask.ErrNotFound) {
				t.Errorf("second Poll() error = %v, want %v", err, agenttask.ErrNotFound)
			}
		})
	}
}

func TestRegistry_PendingIsKept(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	release := make(chan struct{})
	id, err := r.Start(t.Context(), func(context.Context) (string, error) {
		<-release
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for range 3 {
		res, err := r.Poll(id)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if diff := cmp.Diff(Result[string]{Status: StatusPending}, res, cmpopts.EquateErrors()); diff != "" {
			t.Errorf("Poll() mismatch (-want +got):\n%s", diff)
		}
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	close(release)
	if res := pollDone(t, r, id); res.Value != "done" {
		t.Errorf("Value = %q, want %q", res.Value, "done")
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestRegistry_UnknownHandle(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	_, err := r.Poll("missing")
	if got := agenttask.ErrorKindOf(err); got != agenttask.ErrorKindNotFound {
		t.Errorf("ErrorKindOf(Poll()) = %q, want %q", got, agenttask.ErrorKindNotFound)
	}

	var herr *HandleNotFoundError
	if !errors.As(err, &herr) {
		t.Fatalf("Poll() error = %T, want *HandleNotFoundError", err)
	}
	if herr.HandleID != "missing" {
		t.Errorf("HandleID = %q, want %q", herr.HandleID, "missing")
	}
	if want := "background handle not found: missing"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRegistry_DetachedFromCaller(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	ctx, cancel := context.WithCancel(t.Context())
	started := make(chan struct{})
	id, err := r.Start(ctx, func(ctx context.Context) (string, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return "survived", ctx.Err()
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	cancel()

	if res := pollDone(t, r, id); res.Status != StatusCompleted {
		t.Errorf("Status = %s (%v), want %s", res.Status, res.Err, StatusCompleted)
	}
}

func TestRegistry_MaxConcurrent(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(WithMaxConcurrent(2))
	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	work := func(context.Context) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return "ok", nil
	}

	ids := make([]string, 0, 8)
	for range 8 {
		id, err := r.Start(t.Context(), work)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
	for _, id := range ids {
		if res := pollDone(t, r, id); res.Status != StatusCompleted {
			t.Errorf("handle %s Status = %s, want %s", id, res.Status, StatusCompleted)
		}
	}
}

func TestRegistry_Close(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	id, err := r.Start(t.Context(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	res := pollDone(t, r, id)
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want %v", res.Err, context.Canceled)
	}
	if _, err := r.Start(t.Context(), func(context.Context) (string, error) { return "", nil }); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Start() after Close error = %v, want %v", err, ErrRegistryClosed)
	}
}
