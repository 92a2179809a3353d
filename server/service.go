// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the task store, lifecycle manager, event
// broadcaster, execution bridge and background registry into a [Service].
//
// The Service is transport-agnostic; package handler exposes it over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/internal/telemetry"
	"github.com/go-a2a/agenttask/server/agent_execution"
	"github.com/go-a2a/agenttask/server/background"
	"github.com/go-a2a/agenttask/server/event"
	"github.com/go-a2a/agenttask/server/task"
)

// Service runs tasks against one [agent_execution.ResponseGenerator].
type Service struct {
	cfg           Config
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	store         task.Store
	now           func() time.Time

	generator   agent_execution.ResponseGenerator
	broadcaster *event.Broadcaster
	manager     *task.Manager
	bridge      *agent_execution.Bridge
	background  *background.Registry[string]

	stopSweep context.CancelFunc
	sweepDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewService creates a new Service that answers tasks with gen.
func NewService(gen agent_execution.ResponseGenerator, opts ...Option) (*Service, error) {
	if gen == nil {
		return nil, errors.New("response generator is required")
	}

	s := &Service{
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
		generator: gen,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if s.tracer == nil {
		s.tracer = telemetry.Tracer(nil)
	}
	if s.store == nil {
		s.store = task.NewInMemoryTaskStore()
	}
	metrics := telemetry.NewMetrics(s.meterProvider)

	s.broadcaster = event.NewBroadcaster(
		event.WithDefaultCapacity(s.cfg.SubscriberCapacity),
		event.WithReplayRetention(s.cfg.ReplayRetention.Duration()),
		event.WithLogger(s.logger),
		event.WithMetrics(metrics),
	)
	s.manager = task.NewManager(s.store, s.broadcaster,
		task.WithLogger(s.logger),
		task.WithTracer(s.tracer),
		task.WithMetrics(metrics),
	)
	s.bridge = agent_execution.NewBridge(s.manager, s.broadcaster,
		agent_execution.WithLogger(s.logger),
		agent_execution.WithTracer(s.tracer),
		agent_execution.WithMetrics(metrics),
		agent_execution.WithRequestContextBuilder(agent_execution.NewSimpleRequestContextBuilder(s.store)),
	)
	s.background = background.NewRegistry[string](
		background.WithMaxConcurrent(s.cfg.BackgroundConcurrency),
		background.WithLogger(s.logger),
	)

	if s.cfg.TaskTTL > 0 {
		s.startSweeper()
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// SubmitAndRun creates a task for input and starts executing it. It returns
// the task ID without waiting for the generator.
//
// An empty contextID starts a new context.
func (s *Service) SubmitAndRun(ctx context.Context, input, contextID string) (string, error) {
	t := agenttask.NewTask(input, contextID)
	if _, err := s.bridge.Execute(ctx, t, s.generator); err != nil {
		return "", err
	}
	return t.ID, nil
}

// GetTask returns a snapshot of the task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*agenttask.Task, error) {
	return s.manager.Get(ctx, taskID)
}

// ListTasks returns the tasks of contextID ordered by creation time, or every
// task when contextID is empty.
func (s *Service) ListTasks(ctx context.Context, contextID string) ([]*agenttask.Task, error) {
	if contextID == "" {
		return s.store.ListAll(ctx)
	}
	return s.store.List(ctx, contextID)
}

// CancelTask moves the task to canceled and interrupts its generator.
//
// Canceling a finished task returns [*agenttask.AlreadyTerminalError] and
// leaves the task unchanged.
func (s *Service) CancelTask(ctx context.Context, taskID string) (*agenttask.Task, error) {
	t, err := s.manager.Cancel(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if s.bridge.Interrupt(taskID) {
		s.logger.DebugContext(ctx, "generator interrupted", "task_id", taskID)
	}
	return t, nil
}

// Subscribe attaches a subscription to the events of the task. The task does
// not need to exist yet. The caller must Close the subscription.
func (s *Service) Subscribe(ctx context.Context, taskID string, opts ...event.SubscribeOption) (*event.Subscription, error) {
	sub, err := s.broadcaster.Subscribe(taskID, opts...)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "subscribed to task", "task_id", taskID, "capacity", sub.Capacity())
	return sub, nil
}

// RunStreamingTask creates a task for input, starts executing it and returns
// the subscription to all of its events. The caller must Close the subscription.
func (s *Service) RunStreamingTask(ctx context.Context, input, contextID string, opts ...event.SubscribeOption) (*event.Subscription, error) {
	return s.bridge.RunStreaming(ctx, agenttask.NewTask(input, contextID), s.generator, opts...)
}

// RunSynchronousTask creates a task for input and blocks until it finished,
// returning the concatenated artifact text.
//
// A zero timeout falls back to [Config.SyncTimeout]. On timeout
// [*agenttask.TimeoutError] is returned and the task keeps running; its ID is
// carried by the error.
func (s *Service) RunSynchronousTask(ctx context.Context, input, contextID string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = s.cfg.SyncTimeout.Duration()
	}
	return s.bridge.RunSynchronous(ctx, agenttask.NewTask(input, contextID), s.generator, timeout)
}

// StartBackground runs a synchronous task for input on the background
// registry and immediately returns the handle to poll.
func (s *Service) StartBackground(ctx context.Context, input, contextID string) (string, error) {
	return s.background.Start(ctx, func(ctx context.Context) (string, error) {
		return s.RunSynchronousTask(ctx, input, contextID, 0)
	})
}

// PollBackground returns the state of a background handle. A done result is
// returned once.
func (s *Service) PollBackground(handleID string) (background.Result[string], error) {
	return s.background.Poll(handleID)
}

// Stats returns a snapshot of the broadcaster bookkeeping.
func (s *Service) Stats() event.Stats {
	return s.broadcaster.Stats()
}

// Close stops the sweeper, rejects new background work, interrupts running
// generators and waits for them until ctx is done. Open subscriptions are
// closed with [event.ErrBroadcasterClosed].
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopSweep != nil {
			s.stopSweep()
			<-s.sweepDone
		}

		var errs []error
		if err := s.background.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close background registry: %w", err))
		}
		for _, id := range s.bridge.Running() {
			s.bridge.Interrupt(id)
		}
		if err := s.bridge.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for executions: %w", err))
		}
		s.broadcaster.Close()

		s.closeErr = errors.Join(errs...)
		s.logger.InfoContext(ctx, "service closed", "error", s.closeErr)
	})
	return s.closeErr
}
