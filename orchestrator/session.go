// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyoapp/taskwatch"
)

// Mode is the transport a session currently listens on.
type Mode int32

const (
	// ModeChannel means events come from the real-time channel.
	ModeChannel Mode = iota
	// ModePolling means events come from status polling.
	ModePolling
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeChannel:
		return "channel"
	case ModePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Session is the state of one MonitorTask call. It is never shared between
// tasks.
//
// Two values are written concurrently: the fallback flag, which only the
// first switch sets, and the resolved latch, which only the first
// resolution sets.
type Session struct {
	taskID    string
	startedAt time.Time
	deadline  time.Time
	onUpdate  func(taskwatch.TaskEvent)
	span      trace.Span

	mode     atomic.Int32
	fellBack atomic.Bool

	mu       sync.Mutex
	resolved bool
	last     *taskwatch.TaskEvent
	lastFrom Mode
	result   string
	err      error
	done     chan struct{}
}

func newSession(taskID string, now, deadline time.Time, onUpdate func(taskwatch.TaskEvent), span trace.Span) *Session {
	return &Session{
		taskID:    taskID,
		startedAt: now,
		deadline:  deadline,
		onUpdate:  onUpdate,
		span:      span,
		done:      make(chan struct{}),
	}
}

// TaskID returns the monitored task.
func (s *Session) TaskID() string { return s.taskID }

// StartedAt returns when monitoring began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Deadline returns the deadline shared by both phases.
func (s *Session) Deadline() time.Time { return s.deadline }

// Mode returns the active transport.
func (s *Session) Mode() Mode { return Mode(s.mode.Load()) }

// FellBack reports whether the session switched to polling.
func (s *Session) FellBack() bool { return s.fellBack.Load() }

// Done is closed once the session is resolved.
func (s *Session) Done() <-chan struct{} { return s.done }

// Last returns the last event passed to the caller.
func (s *Session) Last() (taskwatch.TaskEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return taskwatch.TaskEvent{}, false
	}
	return *s.last, true
}

// Resolved reports whether the session has its final outcome.
func (s *Session) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Result returns the final outcome. It is only meaningful after Done.
func (s *Session) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// switchToPolling flips the session to polling. Only the first call
// reports true.
func (s *Session) switchToPolling() bool {
	if !s.fellBack.CompareAndSwap(false, true) {
		return false
	}
	s.mode.Store(int32(ModePolling))
	return true
}

// deliver passes ev from source to the caller and resolves the session on a
// terminal event.
//
// Nothing is delivered once the session is resolved. Non-terminal events
// from a source that is no longer active are dropped, as is a polling event
// identical to the one delivered just before it.
func (s *Session) deliver(source Mode, ev taskwatch.TaskEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return false
	}
	if !ev.IsTerminal() {
		if source != s.Mode() {
			return false
		}
		if source == ModePolling && s.lastFrom == ModePolling && s.last != nil && s.last.Equal(ev) {
			return false
		}
	}

	s.last = &ev
	s.lastFrom = source
	s.record(ev, source)
	if s.onUpdate != nil {
		s.onUpdate(ev)
	}
	if ev.IsTerminal() {
		s.resolveLocked(ev)
	}
	return true
}

// expire delivers the synthetic timed out event and fails the session.
func (s *Session) expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return false
	}
	ev := taskwatch.TimedOutEvent()
	s.last = &ev
	s.span.AddEvent("course_generate_timeout", trace.WithAttributes(
		attribute.String("task_id", s.taskID),
		attribute.String("mode", s.Mode().String()),
	))
	if s.onUpdate != nil {
		s.onUpdate(ev)
	}
	s.finishLocked("", taskwatch.NewError(taskwatch.KindTimedOut, "task did not finish before the deadline"))
	return true
}

// fail resolves the session with err unless it is already resolved.
func (s *Session) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return false
	}
	s.finishLocked("", err)
	return true
}

func (s *Session) resolveLocked(ev taskwatch.TaskEvent) {
	switch ev.State {
	case taskwatch.StateDone:
		if ev.ResultID == "" {
			s.finishLocked("", taskwatch.NewError(taskwatch.KindDecode, "done event has no resultId"))
			return
		}
		s.finishLocked(ev.ResultID, nil)
	default:
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		s.finishLocked("", taskwatch.NewError(taskwatch.KindTaskFailed, msg))
	}
}

func (s *Session) finishLocked(result string, err error) {
	s.resolved = true
	s.result = result
	s.err = err
	close(s.done)
}

// record adds ev to the session span.
func (s *Session) record(ev taskwatch.TaskEvent, source Mode) {
	attrs := []attribute.KeyValue{
		attribute.String("task_id", s.taskID),
		attribute.String("source", source.String()),
	}
	name := "course_generate_running"
	switch ev.State {
	case taskwatch.StateDone:
		name = "course_generate_ready"
		attrs = append(attrs, attribute.String("result_id", ev.ResultID))
	case taskwatch.StateError:
		name = "course_generate_error"
		attrs = append(attrs, attribute.String("error", ev.Error))
	default:
		if p, ok := ev.Progress(); ok {
			attrs = append(attrs, attribute.Int("progress", p))
		}
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}
