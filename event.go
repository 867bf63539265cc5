// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package taskwatch

import (
	"fmt"
	"strconv"

	"github.com/go-json-experiment/json"
)

// State represents the lifecycle state of a server-side task.
type State string

const (
	// StateQueued indicates the task was accepted but has not started.
	StateQueued State = "queued"
	// StateRunning indicates the task is in progress.
	StateRunning State = "running"
	// StateDone indicates the task completed and produced a result.
	StateDone State = "done"
	// StateError indicates the task failed.
	StateError State = "error"
)

// ParseState returns the State for the wire value s.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateQueued, StateRunning, StateDone, StateError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown task state %q", s)
	}
}

// IsTerminal reports whether no further events follow a task in state s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// TaskEvent describes one progress update of a task.
//
// TaskEvent is a value type; it is never mutated after decoding.
type TaskEvent struct {
	// State is the task state.
	State State `json:"state"`
	// ProgressPct is the completion percentage, nil when the server omits it.
	ProgressPct *int `json:"progressPct,omitzero"`
	// Message is a human readable status line.
	Message string `json:"message,omitzero"`
	// ResultID identifies the generated result. Only set when State is StateDone.
	ResultID string `json:"resultId,omitzero"`
	// Error is the failure description. Only set when State is StateError.
	Error string `json:"error,omitzero"`
}

// IsTerminal reports whether e ends its task.
func (e TaskEvent) IsTerminal() bool {
	return e.State.IsTerminal()
}

// Progress returns the completion percentage and whether the server reported one.
func (e TaskEvent) Progress() (int, bool) {
	if e.ProgressPct == nil {
		return 0, false
	}
	return *e.ProgressPct, true
}

// Equal reports whether e and other carry the same content.
func (e TaskEvent) Equal(other TaskEvent) bool {
	if e.State != other.State || e.Message != other.Message || e.ResultID != other.ResultID || e.Error != other.Error {
		return false
	}
	p1, ok1 := e.Progress()
	p2, ok2 := other.Progress()
	return ok1 == ok2 && p1 == p2
}

// String implements fmt.Stringer.
func (e TaskEvent) String() string {
	s := string(e.State)
	if p, ok := e.Progress(); ok {
		s += " " + strconv.Itoa(p) + "%"
	}
	if e.Message != "" {
		s += " " + strconv.Quote(e.Message)
	}
	switch e.State {
	case StateDone:
		s += " result=" + e.ResultID
	case StateError:
		s += " error=" + strconv.Quote(e.Error)
	}
	return s
}

// Percent returns a pointer to p, for building events.
func Percent(p int) *int {
	return &p
}

// TimedOutEvent returns the synthetic terminal event reported when a task
// does not finish before its deadline.
func TimedOutEvent() TaskEvent {
	return TaskEvent{
		State:   StateError,
		Message: "timed out",
		Error:   "timed out",
	}
}

// wireEvent mirrors TaskEvent with a raw state so missing and unknown states
// can be told apart.
type wireEvent struct {
	State       *string `json:"state"`
	ProgressPct *int    `json:"progressPct"`
	Message     string  `json:"message"`
	ResultID    string  `json:"resultId"`
	Error       string  `json:"error"`
}

// DecodeEvent parses a JSON payload into a TaskEvent.
//
// It fails with a [KindDecode] error when the payload is malformed, has no
// state, carries an unknown state or a progress outside 0..100.
func DecodeEvent(data []byte) (TaskEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return TaskEvent{}, NewErrorWithCause(KindDecode, "malformed task event", err)
	}
	if w.State == nil {
		return TaskEvent{}, NewError(KindDecode, "task event has no state")
	}
	state, err := ParseState(*w.State)
	if err != nil {
		return TaskEvent{}, NewErrorWithCause(KindDecode, "invalid task event", err)
	}
	if w.ProgressPct != nil && (*w.ProgressPct < 0 || *w.ProgressPct > 100) {
		return TaskEvent{}, NewError(KindDecode, fmt.Sprintf("progress %d out of range", *w.ProgressPct))
	}

	return TaskEvent{
		State:       state,
		ProgressPct: w.ProgressPct,
		Message:     w.Message,
		ResultID:    w.ResultID,
		Error:       w.Error,
	}, nil
}

// EncodeEvent serializes e into its wire form.
func EncodeEvent(e TaskEvent) ([]byte, error) {
	return json.Marshal(e)
}
