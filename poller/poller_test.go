// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package poller_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/internal/clock"
	"github.com/lyoapp/taskwatch/poller"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// script returns a Fetcher that replays results in order and repeats the
// last one once exhausted.
type script struct {
	results []result
	calls   int
}

type result struct {
	ev  taskwatch.TaskEvent
	err error
}

func (s *script) GetTask(_ context.Context, _ string) (taskwatch.TaskEvent, error) {
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.ev, r.err
}

func running(p int) result {
	return result{ev: taskwatch.TaskEvent{State: taskwatch.StateRunning, ProgressPct: taskwatch.Percent(p)}}
}

func statusErr(code int) result {
	return result{err: &taskwatch.Error{Kind: taskwatch.KindForStatus(code), StatusCode: code}}
}

func TestDriver_Run_Success(t *testing.T) {
	done := taskwatch.TaskEvent{State: taskwatch.StateDone, ProgressPct: taskwatch.Percent(100), ResultID: "xyz"}
	s := &script{results: []result{running(20), running(60), {ev: done}}}
	clk := clock.NewVirtual(epoch)

	var emitted []taskwatch.TaskEvent
	d := poller.New(s, poller.WithClock(clk))
	got, err := d.Run(t.Context(), "t-1", time.Time{}, func(ev taskwatch.TaskEvent) {
		emitted = append(emitted, ev)
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got.ResultID != "xyz" {
		t.Errorf("Run() = %v, want result xyz", got)
	}

	want := []taskwatch.TaskEvent{running(20).ev, running(60).ev, done}
	if diff := cmp.Diff(want, emitted); diff != "" {
		t.Errorf("emitted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second, 3200 * time.Millisecond}, clk.Slept()); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDriver_Run_FetchedErrorEventWins(t *testing.T) {
	failed := taskwatch.TaskEvent{State: taskwatch.StateError, Error: "model overloaded"}
	s := &script{results: []result{{ev: failed}}}

	d := poller.New(s, poller.WithClock(clock.NewVirtual(epoch)))
	got, err := d.Run(t.Context(), "t-1", time.Time{}, func(taskwatch.TaskEvent) {})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if diff := cmp.Diff(failed, got); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}
}

func TestDriver_Run_RateLimitedUntilDeadline(t *testing.T) {
	s := &script{results: []result{statusErr(http.StatusTooManyRequests)}}
	clk := clock.NewVirtual(epoch)

	var delays []time.Duration
	d := poller.New(s,
		poller.WithClock(clk),
		poller.WithObserver(func(st poller.RetryState) { delays = append(delays, st.Delay) }),
	)
	got, err := d.Run(t.Context(), "t-1", time.Time{}, func(ev taskwatch.TaskEvent) {
		t.Errorf("unexpected emit of %v", ev)
	})
	if !errors.Is(err, taskwatch.ErrTimedOut) {
		t.Fatalf("Run() error = %v, want timed out", err)
	}
	if !got.Equal(taskwatch.TimedOutEvent()) {
		t.Errorf("Run() event = %v, want the timed out event", got)
	}

	if len(delays) < 2 {
		t.Fatalf("expected several attempts, got %d", len(delays))
	}
	for i, delay := range delays {
		if delay > 30*time.Second {
			t.Errorf("delay[%d] = %v exceeds 30s", i, delay)
		}
		if i > 0 && delay < delays[i-1] {
			t.Errorf("delay[%d] = %v decreased from %v", i, delay, delays[i-1])
		}
	}
	if elapsed := clk.Now().Sub(epoch); elapsed <= poller.DefaultTimeout || elapsed > poller.DefaultTimeout+time.Second {
		t.Errorf("stopped after %v, want just past %v", elapsed, poller.DefaultTimeout)
	}
}

func TestDriver_Run_ServerErrorsNeverFatal(t *testing.T) {
	s := &script{results: []result{statusErr(http.StatusInternalServerError)}}

	d := poller.New(s, poller.WithClock(clock.NewVirtual(epoch)))
	_, err := d.Run(t.Context(), "t-1", time.Time{}, func(taskwatch.TaskEvent) {})
	if !errors.Is(err, taskwatch.ErrTimedOut) {
		t.Fatalf("Run() error = %v, want timed out", err)
	}
	if errors.Is(err, taskwatch.ErrFatalServer) {
		t.Error("server errors must not surface as fatal")
	}
}

func TestDriver_Run_Backoff(t *testing.T) {
	tests := map[string]struct {
		first result
		want  time.Duration
	}{
		"transient grows by 1.8": {
			first: statusErr(http.StatusServiceUnavailable),
			want:  3600 * time.Millisecond,
		},
		"rate limit doubles": {
			first: statusErr(http.StatusTooManyRequests),
			want:  4 * time.Second,
		},
		"retry after raises rate limit delay": {
			first: result{err: &taskwatch.Error{Kind: taskwatch.KindRateLimited, RetryAfter: 12 * time.Second}},
			want:  12 * time.Second,
		},
		"retry after is capped": {
			first: result{err: &taskwatch.Error{Kind: taskwatch.KindRateLimited, RetryAfter: 5 * time.Minute}},
			want:  30 * time.Second,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			done := result{ev: taskwatch.TaskEvent{State: taskwatch.StateDone, ResultID: "r"}}
			s := &script{results: []result{tc.first, done}}
			clk := clock.NewVirtual(epoch)

			d := poller.New(s, poller.WithClock(clk))
			if _, err := d.Run(t.Context(), "t-1", time.Time{}, func(taskwatch.TaskEvent) {}); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if diff := cmp.Diff([]time.Duration{tc.want}, clk.Slept()); diff != "" {
				t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDriver_Run_FatalErrors(t *testing.T) {
	tests := map[string]struct {
		err  error
		want *taskwatch.Error
	}{
		"not found":    {err: statusErr(http.StatusNotFound).err, want: taskwatch.ErrFatalServer},
		"unauthorized": {err: statusErr(http.StatusUnauthorized).err, want: taskwatch.ErrUnauthorized},
		"decode":       {err: taskwatch.NewError(taskwatch.KindDecode, "bad body"), want: taskwatch.ErrDecode},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := &script{results: []result{{err: tc.err}}}
			clk := clock.NewVirtual(epoch)

			d := poller.New(s, poller.WithClock(clk))
			_, err := d.Run(t.Context(), "t-1", time.Time{}, func(taskwatch.TaskEvent) {})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Run() error = %v, want %v", err, tc.want)
			}
			if s.calls != 1 {
				t.Errorf("fetch calls = %d, want 1", s.calls)
			}
			if len(clk.Slept()) != 0 {
				t.Errorf("slept %v after a fatal error", clk.Slept())
			}
		})
	}
}

func TestDriver_Run_SharedDeadline(t *testing.T) {
	s := &script{results: []result{running(10)}}
	clk := clock.NewVirtual(epoch)

	d := poller.New(s, poller.WithClock(clk))
	// deadline already consumed by an earlier phase
	clk.Advance(time.Minute)
	_, err := d.Run(t.Context(), "t-1", epoch.Add(30*time.Second), func(taskwatch.TaskEvent) {})
	if !errors.Is(err, taskwatch.ErrTimedOut) {
		t.Fatalf("Run() error = %v, want timed out", err)
	}
	if s.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", s.calls)
	}
}

func TestDriver_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := poller.FetcherFunc(func(context.Context, string) (taskwatch.TaskEvent, error) {
		cancel()
		return running(5).ev, nil
	})

	emits := 0
	d := poller.New(s, poller.WithClock(clock.NewVirtual(epoch)))
	_, err := d.Run(ctx, "t-1", time.Time{}, func(taskwatch.TaskEvent) { emits++ })
	if !errors.Is(err, taskwatch.ErrCancelled) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}
	if emits != 1 {
		t.Errorf("emits = %d, want 1", emits)
	}
}
