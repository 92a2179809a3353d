// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the OpenTelemetry instruments shared by the task
// lifecycle components.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of tracers and meters.
const ScopeName = "github.com/go-a2a/agenttask"

// Attribute keys.
const (
	AttrTaskID = attribute.Key("agenttask.task_id")
	AttrState  = attribute.Key("agenttask.task_state")
	AttrOp     = attribute.Key("agenttask.op")
)

// Metrics holds the metric instruments.
type Metrics struct {
	tasksSubmitted        metric.Int64Counter
	transitions           metric.Int64Counter
	subscriptionsOverflow metric.Int64Counter
	generatorDuration     metric.Float64Histogram
}

// NewMetrics creates the instruments from mp. A nil mp uses the global
// meter provider. Instruments that cannot be created fall back to noop ones.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(ScopeName)

	var err error
	metrics := &Metrics{}

	metrics.tasksSubmitted, err = m.Int64Counter("agenttask.tasks.submitted",
		metric.WithDescription("Count of created tasks"),
	)
	if err != nil {
		otel.Handle(err)
		metrics.tasksSubmitted = noop.Int64Counter{}
	}

	metrics.transitions, err = m.Int64Counter("agenttask.tasks.transitions",
		metric.WithDescription("Count of task state transitions by target state"),
	)
	if err != nil {
		otel.Handle(err)
		metrics.transitions = noop.Int64Counter{}
	}

	metrics.subscriptionsOverflow, err = m.Int64Counter("agenttask.subscriptions.overflowed",
		metric.WithDescription("Count of subscriptions closed because the consumer fell behind"),
	)
	if err != nil {
		otel.Handle(err)
		metrics.subscriptionsOverflow = noop.Int64Counter{}
	}

	metrics.generatorDuration, err = m.Float64Histogram("agenttask.generator.duration",
		metric.WithDescription("Response generator run time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		metrics.generatorDuration = noop.Float64Histogram{}
	}

	return metrics
}

// Noop returns Metrics backed by noop instruments.
func Noop() *Metrics {
	return NewMetrics(noop.NewMeterProvider())
}

// TaskSubmitted records a created task.
func (m *Metrics) TaskSubmitted(ctx context.Context) {
	m.tasksSubmitted.Add(ctx, 1)
}

// Transition records a transition into state.
func (m *Metrics) Transition(ctx context.Context, state string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(AttrState.String(state)))
}

// SubscriptionOverflowed records a subscription torn down for falling behind.
func (m *Metrics) SubscriptionOverflowed(ctx context.Context) {
	m.subscriptionsOverflow.Add(ctx, 1)
}

// GeneratorFinished records a generator run that took d and ended in state.
func (m *Metrics) GeneratorFinished(ctx context.Context, d time.Duration, state string) {
	m.generatorDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrState.String(state)))
}

// Tracer returns tp's tracer for the module, or the global one when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(ScopeName)
}
