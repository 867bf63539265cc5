// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-json-experiment/json"
	"gopkg.in/yaml.v3"

	"github.com/lyoapp/taskwatch"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	modeStyle  = lipgloss.NewStyle().Faint(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Italic(true)
)

const barWidth = 20

// record is the structured form of everything a command prints.
type record struct {
	Kind       string `json:"kind" yaml:"kind"`
	TaskID     string `json:"taskId,omitzero" yaml:"taskId,omitempty"`
	Mode       string `json:"mode,omitzero" yaml:"mode,omitempty"`
	State      string `json:"state,omitzero" yaml:"state,omitempty"`
	Progress   *int   `json:"progressPct,omitzero" yaml:"progressPct,omitempty"`
	Message    string `json:"message,omitzero" yaml:"message,omitempty"`
	ResultID   string `json:"resultId,omitzero" yaml:"resultId,omitempty"`
	Error      string `json:"error,omitzero" yaml:"error,omitempty"`
	Suggestion string `json:"suggestion,omitzero" yaml:"suggestion,omitempty"`
}

// renderer prints progress and outcomes.
type renderer interface {
	Event(taskID, mode string, ev taskwatch.TaskEvent) error
	Result(taskID, resultID string) error
	Failure(taskID string, err error) error
	Close() error
}

func newRenderer(format string, w io.Writer) (renderer, error) {
	switch format {
	case "", FormatText:
		return &textRenderer{w: w}, nil
	case FormatJSON:
		return &jsonRenderer{w: w}, nil
	case FormatYAML:
		return &yamlRenderer{enc: yaml.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func eventRecord(taskID, mode string, ev taskwatch.TaskEvent) record {
	return record{
		Kind:     "event",
		TaskID:   taskID,
		Mode:     mode,
		State:    ev.State.String(),
		Progress: ev.ProgressPct,
		Message:  ev.Message,
		ResultID: ev.ResultID,
		Error:    ev.Error,
	}
}

func failureRecord(taskID string, err error) record {
	r := record{
		Kind:   "error",
		TaskID: taskID,
		Error:  err.Error(),
	}
	var te *taskwatch.Error
	if errors.As(err, &te) {
		r.Suggestion = te.Suggestion()
	}
	return r
}

type textRenderer struct {
	w io.Writer
}

func (r *textRenderer) Event(_, mode string, ev taskwatch.TaskEvent) error {
	var b strings.Builder
	if p, ok := ev.Progress(); ok {
		b.WriteString(barStyle.Render(progressBar(p, barWidth)))
		fmt.Fprintf(&b, " %3d%%", p)
	} else {
		b.WriteString(barStyle.Render(strings.Repeat(" ", barWidth)))
		b.WriteString("     ")
	}
	fmt.Fprintf(&b, " %-7s", ev.State)
	if ev.Message != "" {
		b.WriteString(" " + ev.Message)
	}
	if mode != "" {
		b.WriteString(" " + modeStyle.Render("("+mode+")"))
	}
	_, err := fmt.Fprintln(r.w, b.String())
	return err
}

func (r *textRenderer) Result(_, resultID string) error {
	_, err := fmt.Fprintln(r.w, doneStyle.Render("Ready:")+" "+resultID)
	return err
}

func (r *textRenderer) Failure(_ string, err error) error {
	rec := failureRecord("", err)
	if _, werr := fmt.Fprintln(r.w, errorStyle.Render("Failed:")+" "+rec.Error); werr != nil {
		return werr
	}
	if rec.Suggestion != "" {
		_, werr := fmt.Fprintln(r.w, hintStyle.Render(rec.Suggestion))
		return werr
	}
	return nil
}

func (r *textRenderer) Close() error { return nil }

type jsonRenderer struct {
	w io.Writer
}

func (r *jsonRenderer) write(rec record) error {
	if err := json.MarshalWrite(r.w, rec); err != nil {
		return err
	}
	_, err := io.WriteString(r.w, "\n")
	return err
}

func (r *jsonRenderer) Event(taskID, mode string, ev taskwatch.TaskEvent) error {
	return r.write(eventRecord(taskID, mode, ev))
}

func (r *jsonRenderer) Result(taskID, resultID string) error {
	return r.write(record{Kind: "result", TaskID: taskID, ResultID: resultID})
}

func (r *jsonRenderer) Failure(taskID string, err error) error {
	return r.write(failureRecord(taskID, err))
}

func (r *jsonRenderer) Close() error { return nil }

type yamlRenderer struct {
	enc *yaml.Encoder
}

func (r *yamlRenderer) Event(taskID, mode string, ev taskwatch.TaskEvent) error {
	return r.enc.Encode(eventRecord(taskID, mode, ev))
}

func (r *yamlRenderer) Result(taskID, resultID string) error {
	return r.enc.Encode(record{Kind: "result", TaskID: taskID, ResultID: resultID})
}

func (r *yamlRenderer) Failure(taskID string, err error) error {
	return r.enc.Encode(failureRecord(taskID, err))
}

func (r *yamlRenderer) Close() error {
	return r.enc.Close()
}

// progressBar draws p percent of width cells.
func progressBar(p, width int) string {
	p = min(max(p, 0), 100)
	filled := p * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
