// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package background provides a registry of fire-and-forget work whose
// outcome is polled later through a handle.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrRegistryClosed is returned by Start after Close.
var ErrRegistryClosed = errors.New("background registry is closed")

// Status is the state of a background handle.
type Status string

const (
	// StatusPending indicates the work has not finished yet.
	StatusPending Status = "pending"

	// StatusCompleted indicates the work returned a value.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the work returned an error or panicked.
	StatusFailed Status = "failed"
)

// Result is the outcome of a poll.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Done reports whether the work finished.
func (r Result[T]) Done() bool {
	return r.Status != StatusPending
}

// Work is a unit of background work.
type Work[T any] func(ctx context.Context) (T, error)

type handle[T any] struct {
	result Result[T]
}

// Registry runs [Work] on separate goroutines and keeps each outcome until it
// is polled as done.
//
// Results that are never polled are kept for the lifetime of the Registry.
type Registry[T any] struct {
	mu      sync.Mutex
	handles map[string]*handle[T]
	closed  bool

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Option configures a [Registry].
type Option func(*options)

type options struct {
	maxConcurrent int64
	logger        *slog.Logger
}

// WithMaxConcurrent bounds the number of works running at once. Further
// works stay pending until a slot frees up. Zero means unbounded.
func WithMaxConcurrent(n int64) Option {
	return func(o *options) {
		o.maxConcurrent = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewRegistry creates a new Registry.
func NewRegistry[T any](opts ...Option) *Registry[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	base, cancel := context.WithCancel(context.Background())
	r := &Registry[T]{
		handles: make(map[string]*handle[T]),
		base:    base,
		cancel:  cancel,
		logger:  o.logger,
	}
	if o.maxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(o.maxConcurrent)
	}
	return r
}

// Start runs work on its own goroutine and immediately returns the handle ID
// to poll.
//
// The context passed to work carries the values of ctx but is not canceled
// with it; it is canceled when the Registry is closed.
func (r *Registry[T]) Start(ctx context.Context, work Work[T]) (string, error) {
	if work == nil {
		return "", errors.New("work cannot be nil")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	id := uuid.NewString()
	h := &handle[T]{result: Result[T]{Status: StatusPending}}
	r.handles[id] = h
	r.wg.Add(1)
	r.mu.Unlock()

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.base, cancel)

	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()

		value, err := r.run(workCtx, work)

		r.mu.Lock()
		if err != nil {
			h.result = Result[T]{Status: StatusFailed, Err: err}
		} else {
			h.result = Result[T]{Status: StatusCompleted, Value: value}
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.WarnContext(workCtx, "background work failed", "handle_id", id, "error", err)
		} else {
			r.logger.DebugContext(workCtx, "background work completed", "handle_id", id)
		}
	}()

	return id, nil
}

func (r *Registry[T]) run(ctx context.Context, work Work[T]) (value T, err error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return value, err
		}
		defer r.sem.Release(1)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("background work panicked: %v", p)
		}
	}()
	return work(ctx)
}

// Poll returns the state of handleID. A done result is returned once and then
// dropped, so the next poll of the same handle returns
// [*HandleNotFoundError].
func (r *Registry[T]) Poll(handleID string) (Result[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[handleID]
	if !ok {
		return Result[T]{}, &HandleNotFoundError{HandleID: handleID}
	}
	res := h.result
	if res.Done() {
		delete(r.handles, handleID)
	}
	return res, nil
}

// Len returns the number of handles not yet polled as done.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// Wait blocks until every started work finished or ctx is done.
func (r *Registry[T]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new work, cancels the context of running work and waits
// for it to return or ctx to be done.
func (r *Registry[T]) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return r.Wait(ctx)
}
