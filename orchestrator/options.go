// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lyoapp/taskwatch/internal/clock"
	"github.com/lyoapp/taskwatch/internal/telemetry"
	"github.com/lyoapp/taskwatch/monitor"
	"github.com/lyoapp/taskwatch/poller"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock driving the deadline and the polling backoff.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDeadline sets the overall monitoring deadline shared by the channel
// and polling phases.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithMonitorOptions passes options to the channel monitor.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(o *Orchestrator) {
		o.monitorOpts = append(o.monitorOpts, opts...)
	}
}

// WithPollerOptions passes options to the polling driver.
func WithPollerOptions(opts ...poller.Option) Option {
	return func(o *Orchestrator) {
		o.pollerOpts = append(o.pollerOpts, opts...)
	}
}

// WithSessionHook registers fn to receive every session when it starts.
func WithSessionHook(fn func(*Session)) Option {
	return func(o *Orchestrator) {
		o.sessionHook = fn
	}
}
