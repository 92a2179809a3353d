// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent_execution runs response generators against tasks and presents
// their results synchronously or as an event stream.
package agent_execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/internal/pool"
	"github.com/go-a2a/agenttask/internal/telemetry"
	"github.com/go-a2a/agenttask/server/event"
	"github.com/go-a2a/agenttask/server/task"
)

// Subscriber attaches subscriptions to task event sequences.
type Subscriber interface {
	Subscribe(taskID string, opts ...event.SubscribeOption) (*event.Subscription, error)
}

// Bridge executes one [ResponseGenerator] invocation per task and drives the
// task through the lifecycle [task.Manager].
//
// Streaming is the only execution path: synchronous callers collect the same
// event stream a streaming caller receives.
type Bridge struct {
	manager    *task.Manager
	subscriber Subscriber
	builder    RequestContextBuilder

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithLogger sets the logger for the Bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithTracer sets the tracer for the Bridge.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = tracer
	}
}

// WithMetrics sets the metric instruments of the Bridge.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = metrics
	}
}

// WithRequestContextBuilder sets the builder of the [RequestContext] passed to generators.
func WithRequestContextBuilder(builder RequestContextBuilder) Option {
	return func(b *Bridge) {
		b.builder = builder
	}
}

// NewBridge creates a new Bridge.
func NewBridge(manager *task.Manager, subscriber Subscriber, opts ...Option) *Bridge {
	b := &Bridge{
		manager:    manager,
		subscriber: subscriber,
		logger:     slog.Default(),
		running:    make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(b)
	}
	if b.builder == nil {
		b.builder = NewSimpleRequestContextBuilder(nil)
	}
	if b.tracer == nil {
		b.tracer = telemetry.Tracer(nil)
	}
	if b.metrics == nil {
		b.metrics = telemetry.NewMetrics(nil)
	}
	return b
}

// track registers the interrupt function of a new execution of taskID.
func (b *Bridge) track(taskID string, cancel context.CancelFunc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.running[taskID]; ok {
		return false
	}
	b.running[taskID] = cancel
	return true
}

func (b *Bridge) untrack(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.running, taskID)
}

// Execute submits t if needed, moves it to working and runs gen on its own
// goroutine. It returns the working task without waiting for the generator.
//
// The generator context is detached from ctx: the caller going away does not
// stop the execution. Use [Bridge.Interrupt] to signal the generator.
//
// A task that is already being executed, or already finished, yields
// [*agenttask.InvalidTransitionError].
func (b *Bridge) Execute(ctx context.Context, t *agenttask.Task, gen ResponseGenerator) (working *agenttask.Task, err error) {
	if t == nil {
		return nil, errors.New("task cannot be nil")
	}
	if gen == nil {
		return nil, errors.New("generator cannot be nil")
	}

	ctx, span := b.tracer.Start(ctx, "agenttask.bridge.Execute",
		trace.WithAttributes(telemetry.AttrTaskID.String(t.ID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	stored, _, err := b.manager.Submit(ctx, t)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if !b.track(stored.ID, cancel) {
		cancel()
		return nil, &agenttask.InvalidTransitionError{TaskID: stored.ID, Op: "execute", From: agenttask.TaskStateWorking}
	}

	rc, err := b.builder.Build(ctx, stored)
	if err != nil {
		b.untrack(stored.ID)
		cancel()
		if _, ferr := b.manager.Fail(ctx, stored.ID, err.Error()); ferr != nil {
			b.logger.DebugContext(ctx, "could not fail task", "task_id", stored.ID, "error", ferr)
		}
		return nil, fmt.Errorf("build request context: %w", err)
	}

	working, err = b.manager.StartWork(ctx, stored.ID)
	if err != nil {
		b.untrack(stored.ID)
		cancel()
		return nil, err
	}

	b.wg.Add(1)
	go b.run(WithRequestContext(runCtx, rc), cancel, working, gen)

	return working, nil
}

// run invokes the generator and converts its outcome into task transitions.
func (b *Bridge) run(ctx context.Context, cancel context.CancelFunc, t *agenttask.Task, gen ResponseGenerator) {
	defer b.wg.Done()
	defer b.untrack(t.ID)
	defer cancel()

	start := time.Now()
	err := b.generate(ctx, t, gen)

	var final agenttask.TaskState
	if err != nil {
		b.logger.WarnContext(ctx, "response generator failed", "task_id", t.ID, "error", err)
		if _, ferr := b.manager.Fail(ctx, t.ID, err.Error()); ferr != nil {
			b.dropped(ctx, t.ID, "fail", ferr)
		} else {
			final = agenttask.TaskStateFailed
		}
	} else {
		if _, cerr := b.manager.Complete(ctx, t.ID); cerr != nil {
			b.dropped(ctx, t.ID, "complete", cerr)
		} else {
			final = agenttask.TaskStateCompleted
		}
	}
	if final == "" {
		final = agenttask.TaskStateCanceled
	}

	b.metrics.GeneratorFinished(ctx, time.Since(start), final.String())
}

// generate runs gen and appends its output as artifacts. A panic in the
// generator is returned as an error.
func (b *Bridge) generate(ctx context.Context, t *agenttask.Task, gen ResponseGenerator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("response generator panicked: %v", r)
		}
	}()

	emit := func(fragment string) error {
		_, err := b.manager.AppendArtifact(ctx, t.ID, agenttask.NewTextArtifact(fragment))
		return err
	}

	if sg, ok := gen.(StreamingGenerator); ok {
		return sg.GenerateStream(ctx, t.Input, emit)
	}

	text, err := gen.Generate(ctx, t.Input)
	if err != nil {
		return err
	}
	return emit(text)
}

// dropped logs a transition that lost the race against a cancel or an eviction.
func (b *Bridge) dropped(ctx context.Context, taskID, op string, err error) {
	if errors.Is(err, agenttask.ErrInvalidTransition) || errors.Is(err, agenttask.ErrNotFound) {
		b.logger.DebugContext(ctx, "late transition dropped", "task_id", taskID, "op", op, "error", err)
		return
	}
	b.logger.ErrorContext(ctx, "transition failed", "task_id", taskID, "op", op, "error", err)
}

// RunStreaming executes gen against t and returns the subscription to its
// events. The subscription is attached before execution starts, so it
// observes every event of the task and always ends with the terminal one.
//
// The returned subscription is single-use; the caller must Close it.
func (b *Bridge) RunStreaming(ctx context.Context, t *agenttask.Task, gen ResponseGenerator, opts ...event.SubscribeOption) (*event.Subscription, error) {
	if t == nil {
		return nil, errors.New("task cannot be nil")
	}

	sub, err := b.subscriber.Subscribe(t.ID, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := b.Execute(ctx, t, gen); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// RunSynchronous executes gen against t and blocks until the task finished,
// returning the concatenated artifact text.
//
// When t already finished, its stored result is returned without running gen
// again. A failed task returns [*agenttask.GeneratorError] carrying the recorded
// message and a canceled task returns [*agenttask.TaskCanceledError]. When
// timeout is positive and elapses first, [*agenttask.TimeoutError] is
// returned; the execution keeps running.
func (b *Bridge) RunSynchronous(ctx context.Context, t *agenttask.Task, gen ResponseGenerator, timeout time.Duration) (text string, err error) {
	if t == nil {
		return "", errors.New("task cannot be nil")
	}

	ctx, span := b.tracer.Start(ctx, "agenttask.bridge.RunSynchronous",
		trace.WithAttributes(telemetry.AttrTaskID.String(t.ID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	stored, err := b.manager.Get(ctx, t.ID)
	switch {
	case err == nil && stored.Status.IsTerminal():
		b.logger.DebugContext(ctx, "task already finished", "task_id", t.ID, "state", stored.Status)
		return Result(stored)
	case err != nil && !errors.Is(err, agenttask.ErrNotFound):
		return "", err
	}

	// the collector reads as fast as events arrive and must not overflow
	sub, err := b.RunStreaming(ctx, t, gen, event.WithCapacity(math.MaxInt))
	if err != nil {
		return "", err
	}
	defer sub.Close()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return Collect(waitCtx, sub, func(err error) error {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			b.logger.InfoContext(ctx, "synchronous wait timed out", "task_id", t.ID, "timeout", timeout)
			return &agenttask.TimeoutError{TaskID: t.ID, After: timeout}
		}
		return err
	})
}

// Collect reads sub until the terminal event and returns the concatenated
// artifact text, or the error the terminal state stands for. onErr maps an
// error returned by the subscription itself; it may be nil.
func Collect(ctx context.Context, sub *event.Subscription, onErr func(error) error) (string, error) {
	sb := pool.String.Get()
	defer pool.String.Put(sb)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if onErr != nil {
				err = onErr(err)
			}
			return "", err
		}

		switch p := ev.Payload.(type) {
		case *agenttask.ArtifactAppended:
			sb.WriteString(p.Artifact.Text)
		case *agenttask.StatusChanged:
			switch p.Status {
			case agenttask.TaskStateCompleted:
				return sb.String(), nil
			case agenttask.TaskStateFailed:
				return "", &agenttask.GeneratorError{TaskID: ev.TaskID, Message: p.Error}
			case agenttask.TaskStateCanceled:
				return "", &agenttask.TaskCanceledError{TaskID: ev.TaskID}
			}
		}
	}
}

// Result returns the outcome of a finished task the way [Collect] reports it:
// the concatenated artifact text for a completed task,
// [*agenttask.GeneratorError] for a failed one and
// [*agenttask.TaskCanceledError] for a canceled one. A task that is still
// running yields [*agenttask.InvalidTransitionError].
func Result(t *agenttask.Task) (string, error) {
	switch t.Status {
	case agenttask.TaskStateCompleted:
		return t.Text(), nil
	case agenttask.TaskStateFailed:
		return "", &agenttask.GeneratorError{TaskID: t.ID, Message: t.Error}
	case agenttask.TaskStateCanceled:
		return "", &agenttask.TaskCanceledError{TaskID: t.ID}
	default:
		return "", &agenttask.InvalidTransitionError{TaskID: t.ID, Op: "result", From: t.Status}
	}
}

// Interrupt cancels the generator context of the running execution of taskID.
// It reports whether an execution was running. Generators that do not observe
// their context keep running; their late transitions are dropped.
func (b *Bridge) Interrupt(taskID string) bool {
	b.mu.Lock()
	cancel, ok := b.running[taskID]
	b.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Running returns the IDs of the tasks currently being executed, sorted.
func (b *Bridge) Running() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.running))
	for id := range b.running {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait blocks until every running execution finished or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
