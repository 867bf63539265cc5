// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lyoapp/taskwatch"
)

// fastEnv keeps demo runs short and isolated from local config files.
func fastEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TASKWATCH_API_BASE_URL", "")
	t.Setenv("TASKWATCH_API_TOKEN", "")
	t.Setenv("TASKWATCH_CHANNEL_URL", "")
	t.Setenv("TASKWATCH_CHANNEL_LIVENESS_TIMEOUT", "1s")
	t.Setenv("TASKWATCH_POLLING_INITIAL_DELAY", "5ms")
	t.Setenv("TASKWATCH_POLLING_MAX_DELAY", "20ms")
	t.Setenv("TASKWATCH_MONITOR_DEADLINE", "10s")
	t.Setenv("TASKWATCH_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func decodeLines(t *testing.T, out string) []record {
	t.Helper()
	var recs []record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line %q", sc.Text())
		recs = append(recs, r)
	}
	return recs
}

func TestDemo_JSON(t *testing.T) {
	fastEnv(t)

	out, _, err := run(t, "demo", "--step", "2ms", "-o", "json", "--topic", "Go")
	require.NoError(t, err)

	recs := decodeLines(t, out)
	require.Len(t, recs, 9)

	for _, r := range recs[:8] {
		assert.Equal(t, "event", r.Kind)
		assert.NotEmpty(t, r.TaskID)
		assert.Empty(t, r.Mode)
	}
	assert.Equal(t, "Analyzing topic: Go...", recs[0].Message)
	assert.Equal(t, "done", recs[7].State)
	require.NotNil(t, recs[7].Progress)
	assert.Equal(t, 100, *recs[7].Progress)

	last := recs[8]
	assert.Equal(t, "result", last.Kind)
	assert.True(t, strings.HasPrefix(last.ResultID, "course-"), "result id %q", last.ResultID)
	assert.Equal(t, recs[7].ResultID, last.ResultID)
}

func TestDemo_PollingFallback(t *testing.T) {
	fastEnv(t)

	out, _, err := run(t, "demo", "--step", "5ms", "--no-channel", "-o", "json")
	require.NoError(t, err)

	recs := decodeLines(t, out)
	require.GreaterOrEqual(t, len(recs), 2)
	for _, r := range recs[:len(recs)-1] {
		assert.Equal(t, "event", r.Kind)
		assert.Equal(t, "polling", r.Mode)
	}
	assert.Equal(t, "result", recs[len(recs)-1].Kind)
}

func TestDemo_TaskFails(t *testing.T) {
	fastEnv(t)

	out, stderr, err := run(t, "demo", "--step", "2ms", "--fail", "model overloaded", "-o", "json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, taskwatch.ErrTaskFailed), "err = %v", err)

	var reported *reportedError
	assert.True(t, errors.As(err, &reported))
	assert.NotContains(t, stderr, "Error:")

	recs := decodeLines(t, out)
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, "error", last.Kind)
	assert.Contains(t, last.Error, "model overloaded")
	assert.Empty(t, last.Suggestion)
}

func TestDemo_Text(t *testing.T) {
	fastEnv(t)

	out, _, err := run(t, "demo", "--step", "2ms")
	require.NoError(t, err)

	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "Course generation complete!")
	assert.Contains(t, out, "Ready:")
	assert.Contains(t, out, strings.Repeat("█", barWidth))
}

func TestDemo_YAML(t *testing.T) {
	fastEnv(t)

	out, _, err := run(t, "demo", "--step", "2ms", "-o", "yaml")
	require.NoError(t, err)

	dec := yaml.NewDecoder(strings.NewReader(out))
	var recs []record
	for {
		var r record
		if err := dec.Decode(&r); err != nil {
			break
		}
		recs = append(recs, r)
	}
	require.Len(t, recs, 9)
	assert.Equal(t, "running", recs[0].State)
	assert.Equal(t, "result", recs[8].Kind)
}

func TestWatch_InvalidConfig(t *testing.T) {
	fastEnv(t)

	_, _, err := run(t, "watch", "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestWatch_RequiresTaskID(t *testing.T) {
	fastEnv(t)

	_, _, err := run(t, "watch")
	require.Error(t, err)
}

func TestGenerate_RequiresTopic(t *testing.T) {
	fastEnv(t)
	t.Setenv("TASKWATCH_API_BASE_URL", "http://127.0.0.1:1")

	_, _, err := run(t, "generate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestUnknownOutputFormat(t *testing.T) {
	fastEnv(t)

	_, _, err := run(t, "demo", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestFailureRecord(t *testing.T) {
	err := taskwatch.NewError(taskwatch.KindRateLimited, "slow down")

	r := failureRecord("task-1", err)
	assert.Equal(t, "error", r.Kind)
	assert.Equal(t, "task-1", r.TaskID)
	assert.Equal(t, err.Suggestion(), r.Suggestion)

	r = failureRecord("", errors.New("plain"))
	assert.Equal(t, "plain", r.Error)
	assert.Empty(t, r.Suggestion)
}

func TestTextRenderer_Failure(t *testing.T) {
	var buf bytes.Buffer
	r := &textRenderer{w: &buf}

	require.NoError(t, r.Failure("", taskwatch.NewError(taskwatch.KindTimedOut, "deadline exceeded")))
	assert.Contains(t, buf.String(), "Failed:")
	assert.Contains(t, buf.String(), "taking longer than expected")
}

func TestProgressBar(t *testing.T) {
	tests := map[string]struct {
		p    int
		want string
	}{
		"empty":        {p: 0, want: "░░░░░░░░░░"},
		"half":         {p: 50, want: "█████░░░░░"},
		"full":         {p: 100, want: "██████████"},
		"clamped high": {p: 140, want: "██████████"},
		"clamped low":  {p: -5, want: "░░░░░░░░░░"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, progressBar(tc.p, 10))
		})
	}
}
