// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/agenttask/server/task"
)

// Option represents an option for configuring the [Service].
type Option func(*Service)

// WithConfig replaces the whole [Config] of the [Service]. Options given
// after it still apply on top.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithLogger sets the [*slog.Logger] for the [Service] and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] for the [Service] and its components.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMeterProvider sets the [metric.MeterProvider] the instruments are created from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meterProvider = mp
	}
}

// WithStore sets the [task.Store] of the [Service]. It defaults to a
// [task.InMemoryTaskStore].
func WithStore(store task.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithSubscriberCapacity sets [Config.SubscriberCapacity].
func WithSubscriberCapacity(n int) Option {
	return func(s *Service) {
		s.cfg.SubscriberCapacity = n
	}
}

// WithReplayRetention sets [Config.ReplayRetention].
func WithReplayRetention(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.ReplayRetention = Duration(d)
	}
}

// WithTaskTTL sets [Config.TaskTTL].
func WithTaskTTL(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.TaskTTL = Duration(d)
	}
}

// WithSweepInterval sets [Config.SweepInterval].
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.SweepInterval = Duration(d)
	}
}

// WithSyncTimeout sets [Config.SyncTimeout].
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.SyncTimeout = Duration(d)
	}
}

// WithBackgroundConcurrency sets [Config.BackgroundConcurrency].
func WithBackgroundConcurrency(n int64) Option {
	return func(s *Service) {
		s.cfg.BackgroundConcurrency = n
	}
}
