// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		want    slog.Level
		wantErr bool
	}{
		"debug":   {want: slog.LevelDebug},
		"INFO":    {want: slog.LevelInfo},
		"":        {want: slog.LevelInfo},
		"warning": {want: slog.LevelWarn},
		"error":   {want: slog.LevelError},
		"trace":   {wantErr: true},
	}

	for in, tc := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseLevel(in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", in, got, tc.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "task_id", "t-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"task_id":"t-1"`) {
		t.Errorf("expected JSON record, got %s", out)
	}

	if _, err := New("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
