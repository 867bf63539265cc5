// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package poller drives status polling of a task with exponential backoff
// until the task ends or a deadline passes.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/internal/clock"
	"github.com/lyoapp/taskwatch/internal/telemetry"
)

// Defaults of a Driver.
const (
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultTimeout      = 600 * time.Second
)

// Backoff factors per outcome of a poll.
const (
	successFactor   = 1.6
	rateLimitFactor = 2.0
	transientFactor = 1.8
	// rateLimitCap bounds the rate-limit delay independently of the max delay.
	rateLimitCap = 30 * time.Second
)

// Fetcher fetches the current status of a task.
type Fetcher interface {
	GetTask(ctx context.Context, taskID string) (taskwatch.TaskEvent, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, taskID string) (taskwatch.TaskEvent, error)

// GetTask implements Fetcher.
func (f FetcherFunc) GetTask(ctx context.Context, taskID string) (taskwatch.TaskEvent, error) {
	return f(ctx, taskID)
}

// RetryState is the backoff state of one polling session.
type RetryState struct {
	// Delay is the wait before the next attempt.
	Delay time.Duration
	// Attempt counts the status requests sent so far.
	Attempt int
	// StartTime is when the session began.
	StartTime time.Time
}

// Driver polls a task until it reaches a terminal state.
type Driver struct {
	fetcher      Fetcher
	clock        clock.Clock
	initialDelay time.Duration
	maxDelay     time.Duration
	timeout      time.Duration
	observer     func(RetryState)
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for sleeps and the deadline.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(delay time.Duration) Option {
	return func(d *Driver) {
		if delay > 0 {
			d.initialDelay = delay
		}
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(delay time.Duration) Option {
	return func(d *Driver) {
		if delay > 0 {
			d.maxDelay = delay
		}
	}
}

// WithTimeout sets the deadline used when Run is given none.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithObserver registers fn to receive the retry state after every attempt.
func WithObserver(fn func(RetryState)) Option {
	return func(d *Driver) {
		d.observer = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Driver) {
		if m != nil {
			d.metrics = m
		}
	}
}

// New returns a Driver that fetches status through f.
func New(f Fetcher, opts ...Option) *Driver {
	d := &Driver{
		fetcher:      f,
		clock:        clock.Real(),
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = telemetry.New(nil)
	}
	return d
}

// Run polls taskID and passes every fetched event to emit, in order.
//
// Run returns the terminal event once one is fetched. When deadline passes
// first it returns [taskwatch.TimedOutEvent] together with a
// [taskwatch.KindTimedOut] error; the synthetic event is not emitted. A zero
// deadline means now plus the configured timeout.
//
// Rate-limited and transient failures are retried. Any other failure is
// returned at once.
func (d *Driver) Run(ctx context.Context, taskID string, deadline time.Time, emit func(taskwatch.TaskEvent)) (taskwatch.TaskEvent, error) {
	state := RetryState{
		Delay:     d.initialDelay,
		StartTime: d.clock.Now(),
	}
	if deadline.IsZero() {
		deadline = state.StartTime.Add(d.timeout)
	}
	logger := d.logger.With("task_id", taskID)

	for {
		if err := ctx.Err(); err != nil {
			return taskwatch.TaskEvent{}, taskwatch.FromContext(err)
		}
		if d.clock.Now().After(deadline) {
			logger.WarnContext(ctx, "polling deadline reached", "attempts", state.Attempt)
			return taskwatch.TimedOutEvent(), taskwatch.NewError(taskwatch.KindTimedOut, "task did not finish before the deadline")
		}

		state.Attempt++
		ev, err := d.fetcher.GetTask(ctx, taskID)
		if err == nil {
			d.metrics.Poll(ctx, "ok")
			emit(ev)
			if ev.IsTerminal() {
				return ev, nil
			}
			d.notify(state)
			if err := d.sleep(ctx, state.Delay, deadline); err != nil {
				return taskwatch.TaskEvent{}, taskwatch.FromContext(err)
			}
			state.Delay = min(scale(state.Delay, successFactor), d.maxDelay)
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return taskwatch.TaskEvent{}, taskwatch.FromContext(ctxErr)
		}

		var te *taskwatch.Error
		errors.As(err, &te)
		switch taskwatch.KindOf(err) {
		case taskwatch.KindRateLimited:
			d.metrics.Poll(ctx, "rate_limited")
			state.Delay = min(max(scale(state.Delay, rateLimitFactor), te.RetryAfter), rateLimitCap)
		case taskwatch.KindTransientServer:
			d.metrics.Poll(ctx, "transient")
			state.Delay = min(scale(state.Delay, transientFactor), d.maxDelay)
		default:
			d.metrics.Poll(ctx, "fatal")
			logger.ErrorContext(ctx, "polling failed", "attempt", state.Attempt, "error", err)
			return taskwatch.TaskEvent{}, err
		}

		logger.DebugContext(ctx, "poll failed, backing off", "attempt", state.Attempt, "delay", state.Delay, "error", err)
		d.notify(state)
		if err := d.sleep(ctx, state.Delay, deadline); err != nil {
			return taskwatch.TaskEvent{}, taskwatch.FromContext(err)
		}
	}
}

func (d *Driver) notify(state RetryState) {
	if d.observer != nil {
		d.observer(state)
	}
}

// sleep waits for delay, cut short so it ends just past deadline.
func (d *Driver) sleep(ctx context.Context, delay time.Duration, deadline time.Time) error {
	if remaining := deadline.Sub(d.clock.Now()); remaining < delay {
		delay = max(remaining, 0) + time.Millisecond
	}
	return clock.Sleep(ctx, d.clock, delay)
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
