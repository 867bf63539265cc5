// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator starts generation tasks and follows them to a single
// completion, first over the real-time channel and then, if the channel
// fails, by polling.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/internal/clock"
	"github.com/lyoapp/taskwatch/internal/telemetry"
	"github.com/lyoapp/taskwatch/monitor"
	"github.com/lyoapp/taskwatch/poller"
	"github.com/lyoapp/taskwatch/transport"
)

// DefaultDeadline bounds a whole MonitorTask call.
const DefaultDeadline = 600 * time.Second

// API is the task HTTP API. [*client.Client] implements it.
type API interface {
	StartTask(ctx context.Context, req taskwatch.GenerateRequest) (*taskwatch.TaskHandle, error)
	GetTask(ctx context.Context, taskID string) (taskwatch.TaskEvent, error)
}

// Orchestrator follows tasks to completion. It is safe for concurrent use;
// every MonitorTask call gets its own Session.
type Orchestrator struct {
	api         API
	monitor     *monitor.Monitor
	poller      *poller.Driver
	clock       clock.Clock
	deadline    time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
	monitorOpts []monitor.Option
	pollerOpts  []poller.Option
	sessionHook func(*Session)
}

// New returns an Orchestrator that starts and polls tasks through api and
// listens for progress on t.
func New(api API, t transport.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:      api,
		clock:    clock.Real(),
		deadline: DefaultDeadline,
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer(telemetry.ScopeName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = telemetry.New(nil)
	}

	o.monitor = monitor.New(t, append([]monitor.Option{monitor.WithLogger(o.logger)}, o.monitorOpts...)...)
	o.poller = poller.New(api, append([]poller.Option{
		poller.WithClock(o.clock),
		poller.WithTimeout(o.deadline),
		poller.WithLogger(o.logger),
		poller.WithMetrics(o.metrics),
	}, o.pollerOpts...)...)

	return o
}

// StartTask asks the server to generate a course on topic. Every call uses a
// fresh idempotency key, so retries are new requests.
func (o *Orchestrator) StartTask(ctx context.Context, topic string, interests []string) (*taskwatch.TaskHandle, error) {
	ctx, span := o.tracer.Start(ctx, "taskwatch.StartTask")
	defer span.End()

	span.AddEvent("course_generate_requested", trace.WithAttributes(
		attribute.String("topic", topic),
		attribute.StringSlice("interests", interests),
	))

	h, err := o.api.StartTask(ctx, taskwatch.GenerateRequest{Topic: topic, Interests: interests})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.ErrorContext(ctx, "failed to start task", "topic", topic, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("taskwatch.task_id", h.TaskID))

	return h, nil
}

// MonitorTask follows taskID until it ends and returns its result id.
//
// Every event is passed to onUpdate in arrival order; onUpdate is never
// called concurrently and never after MonitorTask returns. The result is
// decided exactly once: the task's result id, a [taskwatch.KindTaskFailed]
// error carrying the task's error text, a [taskwatch.KindTimedOut] error
// once the deadline passes, or a [taskwatch.KindCancelled] error when ctx is
// cancelled. Terminal polling errors such as [taskwatch.KindUnauthorized]
// are returned as they are.
func (o *Orchestrator) MonitorTask(ctx context.Context, taskID string, onUpdate func(taskwatch.TaskEvent)) (string, error) {
	ctx, span := o.tracer.Start(ctx, "taskwatch.MonitorTask",
		trace.WithAttributes(attribute.String("taskwatch.task_id", taskID)))
	defer span.End()

	now := o.clock.Now()
	s := newSession(taskID, now, now.Add(o.deadline), onUpdate, span)
	if o.sessionHook != nil {
		o.sessionHook(s)
	}
	logger := o.logger.With("task_id", taskID)

	runCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.run(runCtx, s, logger)
	}()

	select {
	case <-s.Done():
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			s.fail(taskwatch.FromContext(err))
		} else {
			s.expire()
		}
	}
	cancel()
	wg.Wait()

	result, err := s.Result()
	o.metrics.Resolution(ctx, outcome(err), s.Mode().String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "task monitoring failed", "mode", s.Mode(), "error", err)
		return "", err
	}
	span.SetAttributes(attribute.String("taskwatch.result_id", result))
	logger.InfoContext(ctx, "task completed", "mode", s.Mode(), "result_id", result)

	return result, nil
}

// GenerateAndWatch starts a task and monitors it to completion.
func (o *Orchestrator) GenerateAndWatch(ctx context.Context, topic string, interests []string, onUpdate func(taskwatch.TaskEvent)) (string, error) {
	h, err := o.StartTask(ctx, topic, interests)
	if err != nil {
		return "", err
	}
	return o.MonitorTask(ctx, h.TaskID, onUpdate)
}

// run drives the channel phase and, after a fallback, the polling phase of s.
func (o *Orchestrator) run(ctx context.Context, s *Session, logger *slog.Logger) {
	_, err := o.monitor.Run(ctx, s.taskID, monitor.Handlers{
		OnEvent: func(ev taskwatch.TaskEvent) {
			s.deliver(ModeChannel, ev)
		},
		OnFallback: func(fe *monitor.FallbackError) {
			if s.switchToPolling() {
				o.metrics.Fallback(ctx, fe.Reason)
				s.span.AddEvent("fallback", trace.WithAttributes(attribute.String("reason", fe.Reason)))
			}
		},
		OnStateChange: func(from, to monitor.State) {
			logger.DebugContext(ctx, "channel state changed", "from", from, "to", to)
		},
	})
	if !errors.Is(err, monitor.ErrFallback) {
		// terminal frame or cancellation, both already settled
		return
	}
	s.switchToPolling()
	if s.Resolved() {
		return
	}

	logger.InfoContext(ctx, "polling task", "reason", err)
	_, err = o.poller.Run(ctx, s.taskID, s.deadline, func(ev taskwatch.TaskEvent) {
		s.deliver(ModePolling, ev)
	})
	switch {
	case err == nil:
	case errors.Is(err, taskwatch.ErrTimedOut):
		s.expire()
	case errors.Is(err, taskwatch.ErrCancelled):
	default:
		s.fail(err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, taskwatch.ErrTaskFailed):
		return "failed"
	case errors.Is(err, taskwatch.ErrTimedOut):
		return "timed_out"
	case errors.Is(err, taskwatch.ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
