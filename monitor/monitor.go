// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor watches the real-time channel of a task and decides when
// the channel can no longer be trusted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/transport"
)

// Defaults of a Monitor.
const (
	DefaultLivenessTimeout   = 10 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultProbeTimeout      = 5 * time.Second
)

// State is the state of one monitoring run.
type State int

const (
	// StateConnecting means the channel is being opened.
	StateConnecting State = iota
	// StateLivenessPending means the channel is open and no valid frame has
	// arrived yet.
	StateLivenessPending
	// StateStreaming means frames are flowing.
	StateStreaming
	// StateTerminal means a terminal frame was received.
	StateTerminal
	// StateFallbackSignaled means the channel was given up on.
	StateFallbackSignaled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLivenessPending:
		return "liveness_pending"
	case StateStreaming:
		return "streaming"
	case StateTerminal:
		return "terminal"
	case StateFallbackSignaled:
		return "fallback_signaled"
	default:
		return "unknown"
	}
}

// ErrFallback matches every *FallbackError.
var ErrFallback = errors.New("channel unusable, fall back to polling")

// FallbackError reports why the channel was given up on.
type FallbackError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("monitor fallback: %s: %v", e.Reason, e.Cause)
	}
	return "monitor fallback: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *FallbackError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is [ErrFallback].
func (e *FallbackError) Is(target error) bool {
	return target == ErrFallback
}

// Fallback reasons.
const (
	ReasonOpenFailed  = "open failed"
	ReasonLiveness    = "no frame before liveness timeout"
	ReasonDecode      = "undecodable frame"
	ReasonDropped     = "channel dropped"
	ReasonProbeFailed = "heartbeat probe failed"
)

// Handlers receive the output of a run. Every field is optional.
type Handlers struct {
	// OnEvent receives every decoded frame in arrival order. A terminal
	// frame that arrives after fallback is still passed on.
	OnEvent func(taskwatch.TaskEvent)
	// OnFallback is called at most once per run, when the channel is given up.
	OnFallback func(err *FallbackError)
	// OnStateChange reports state transitions.
	OnStateChange func(from, to State)
}

// Monitor opens task channels and watches them.
type Monitor struct {
	transport         transport.Transport
	livenessTimeout   time.Duration
	heartbeatInterval time.Duration
	probeTimeout      time.Duration
	logger            *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLivenessTimeout sets how long to wait for the channel to open and
// deliver its first valid frame.
func WithLivenessTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.livenessTimeout = d
		}
	}
}

// WithHeartbeatInterval sets how often a streaming channel is probed. Zero
// disables probing.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.heartbeatInterval = d
		}
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New returns a Monitor over t.
func New(t transport.Transport, opts ...Option) *Monitor {
	m := &Monitor{
		transport:         t,
		livenessTimeout:   DefaultLivenessTimeout,
		heartbeatInterval: DefaultHeartbeatInterval,
		probeTimeout:      DefaultProbeTimeout,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run opens the channel of taskID and watches it.
//
// Run returns the terminal event when the task ends on the channel, a
// *FallbackError when the channel is given up on, or a Cancelled error when
// ctx is done. The channel is closed before Run returns and is never reopened.
func (m *Monitor) Run(ctx context.Context, taskID string, h Handlers) (taskwatch.TaskEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		h:       h,
		logger:  m.logger.With("task_id", taskID),
		settled: make(chan outcome, 1),
	}
	r.transition(StateConnecting)

	liveness := time.NewTimer(m.livenessTimeout)
	defer liveness.Stop()

	type opened struct {
		conn transport.Conn
		err  error
	}
	openc := make(chan opened, 1)
	go func() {
		conn, err := m.transport.Open(ctx, taskID)
		openc <- opened{conn, err}
	}()

	// abandon stops a pending Open and closes whatever it produced.
	abandon := func() {
		cancel()
		if o := <-openc; o.conn != nil {
			o.conn.Close()
		}
	}

	var conn transport.Conn
	select {
	case o := <-openc:
		if o.err != nil {
			r.signal(ReasonOpenFailed, o.err)
			return r.result()
		}
		conn = o.conn
	case <-liveness.C:
		abandon()
		r.signal(ReasonLiveness, nil)
		return r.result()
	case <-ctx.Done():
		err := ctx.Err()
		abandon()
		r.cancel()
		return taskwatch.TaskEvent{}, taskwatch.FromContext(err)
	}
	defer conn.Close()

	r.transition(StateLivenessPending)
	conn.OnMessage(r.handleFrame)

	dropped := conn.Done()
	var heartbeat <-chan time.Time
	if m.heartbeatInterval > 0 {
		t := time.NewTicker(m.heartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case out := <-r.settled:
			return out.event, out.err
		case <-liveness.C:
			r.signalIf(StateLivenessPending, ReasonLiveness, nil)
		case <-dropped:
			dropped = nil
			r.signal(ReasonDropped, conn.Err())
		case <-heartbeat:
			if r.current() != StateStreaming {
				continue
			}
			pctx, pcancel := context.WithTimeout(ctx, m.probeTimeout)
			ok := conn.Probe(pctx)
			pcancel()
			if !ok && ctx.Err() == nil {
				r.signal(ReasonProbeFailed, nil)
			}
		case <-ctx.Done():
			r.cancel()
			return taskwatch.TaskEvent{}, taskwatch.FromContext(ctx.Err())
		}
	}
}

type outcome struct {
	event taskwatch.TaskEvent
	err   error
}

// run is the state of one Monitor.Run call. The first outcome recorded
// wins; later frames and failures are ignored.
type run struct {
	h      Handlers
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	done     bool
	canceled bool
	settled  chan outcome
}

func (r *run) current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *run) transition(to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(to)
}

func (r *run) transitionLocked(to State) {
	from := r.state
	r.state = to
	if from != to && r.h.OnStateChange != nil {
		r.h.OnStateChange(from, to)
	}
}

func (r *run) handleFrame(data []byte) {
	ev, err := taskwatch.DecodeEvent(data)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		if err == nil && ev.IsTerminal() && !r.canceled && r.state == StateFallbackSignaled {
			r.logger.Debug("terminal frame after fallback", "state", ev.State)
			r.emitLocked(ev)
		}
		return
	}
	if err != nil {
		r.logger.Warn("undecodable frame", "error", err)
		r.fallbackLocked(ReasonDecode, err)
		return
	}

	if r.state == StateLivenessPending {
		r.transitionLocked(StateStreaming)
	}
	r.emitLocked(ev)
	if ev.IsTerminal() {
		r.done = true
		r.transitionLocked(StateTerminal)
		r.settled <- outcome{event: ev}
	}
}

func (r *run) emitLocked(ev taskwatch.TaskEvent) {
	if r.h.OnEvent != nil {
		r.h.OnEvent(ev)
	}
}

// signal gives up on the channel unless the run is already settled.
func (r *run) signal(reason string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackLocked(reason, cause)
}

// signalIf gives up on the channel only while the run is in state.
func (r *run) signalIf(state State, reason string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == state {
		r.fallbackLocked(reason, cause)
	}
}

// result waits for the settled outcome.
func (r *run) result() (taskwatch.TaskEvent, error) {
	out := <-r.settled
	return out.event, out.err
}

func (r *run) fallbackLocked(reason string, cause error) {
	if r.done {
		return
	}
	r.done = true
	r.transitionLocked(StateFallbackSignaled)

	fe := &FallbackError{Reason: reason, Cause: cause}
	r.logger.Info("falling back to polling", "reason", reason, "error", cause)
	if r.h.OnFallback != nil {
		r.h.OnFallback(fe)
	}
	r.settled <- outcome{err: fe}
}

func (r *run) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.canceled = true
}
