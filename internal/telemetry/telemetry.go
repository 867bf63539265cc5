// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the OpenTelemetry instruments recorded while
// monitoring tasks.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ScopeName is the instrumentation scope of every tracer and meter in the module.
const ScopeName = "github.com/lyoapp/taskwatch"

// Metrics groups the counters of a monitoring component.
type Metrics struct {
	fallbacks   metric.Int64Counter
	polls       metric.Int64Counter
	resolutions metric.Int64Counter
}

// New creates the instruments from m. A nil m uses the global meter provider.
// Instruments that fail to register fall back to no-ops.
func New(m metric.Meter) *Metrics {
	if m == nil {
		m = otel.GetMeterProvider().Meter(ScopeName)
	}

	var err error
	t := &Metrics{}

	t.fallbacks, err = m.Int64Counter("taskwatch.fallbacks",
		metric.WithDescription("Count of sessions that switched from the channel to polling"),
	)
	if err != nil {
		otel.Handle(err)
		t.fallbacks = noop.Int64Counter{}
	}

	t.polls, err = m.Int64Counter("taskwatch.polls",
		metric.WithDescription("Count of task status requests by outcome"),
	)
	if err != nil {
		otel.Handle(err)
		t.polls = noop.Int64Counter{}
	}

	t.resolutions, err = m.Int64Counter("taskwatch.resolutions",
		metric.WithDescription("Count of monitoring sessions resolved by outcome"),
	)
	if err != nil {
		otel.Handle(err)
		t.resolutions = noop.Int64Counter{}
	}

	return t
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	return New(noop.NewMeterProvider().Meter(ScopeName))
}

// Fallback records a switch to polling for reason.
func (t *Metrics) Fallback(ctx context.Context, reason string) {
	t.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Poll records one status request with its outcome.
func (t *Metrics) Poll(ctx context.Context, outcome string) {
	t.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Resolution records the final outcome of a session and the mode it ended in.
func (t *Metrics) Resolution(ctx context.Context, outcome, mode string) {
	t.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
	))
}
