// Package logging provides tests for the logging wrapper.
package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "trace lowercase", input: "trace", want: LevelTrace},
		{name: "TRACE uppercase", input: "TRACE", want: LevelTrace},
		{name: "debug", input: "debug", want: LevelDebug},
		{name: "info mixed case", input: "InFo", want: LevelInfo},
		{name: "warn", input: "warn", want: LevelWarn},
		{name: "warning alias", input: "WARNING", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "surrounding whitespace", input: "  DEBUG ", want: LevelDebug},
		{name: "unknown level", input: "FATAL", want: LevelInfo, wantErr: true},
		{name: "empty string", input: "", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level slog.Level
		want  string
	}{
		{level: slog.Level(-10), want: "TRACE"},
		{level: LevelTrace, want: "TRACE"},
		{level: slog.Level(-6), want: "DEBUG"},
		{level: LevelDebug, want: "DEBUG"},
		{level: LevelInfo, want: "INFO"},
		{level: slog.Level(2), want: "WARN"},
		{level: LevelWarn, want: "WARN"},
		{level: LevelError, want: "ERROR"},
		{level: slog.Level(12), want: "ERROR"},
	}

	for _, tt := range tests {
		if got := LevelString(tt.level); got != tt.want {
			t.Errorf("LevelString(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestCleanHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := newCleanHandler(LevelInfo, &bytes.Buffer{})

	if h.Enabled(context.Background(), LevelDebug) {
		t.Error("info handler should block debug")
	}
	if !h.Enabled(context.Background(), LevelInfo) {
		t.Error("info handler should allow info")
	}
	if !h.Enabled(context.Background(), LevelError) {
		t.Error("info handler should allow error")
	}
}

func TestCleanHandler_Handle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newCleanHandler(LevelTrace, &buf)

	record := slog.NewRecord(time.Date(2026, 1, 12, 20, 30, 45, 0, time.UTC), LevelWarn, "entity rejected", 0)
	record.AddAttrs(slog.String("entity", "macs_mood"), slog.Int("attempt", 2))

	if err := h.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	want := "2026-01-12 20:30:45 WARN entity rejected entity=macs_mood attempt=2\n"
	if got := buf.String(); got != want {
		t.Errorf("Handle() output = %q, want %q", got, want)
	}
}

func TestCleanHandler_WithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(newCleanHandler(LevelInfo, &buf)).
		With("component", "discovery").
		WithGroup("mqtt")

	logger.Info("published", "topic", "macs/macs_mood/state")

	out := buf.String()
	for _, part := range []string{"INFO published", "component=discovery", "mqtt.topic=macs/macs_mood/state"} {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q, got: %s", part, out)
		}
	}
}

func TestLogger_Component(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(LevelDebug, &buf).Component("store")

	logger.Debug("state saved", "entity", "macs_brightness")

	if !strings.Contains(buf.String(), "component=store") {
		t.Errorf("component attr missing: %s", buf.String())
	}
	if logger.Level() != LevelDebug {
		t.Errorf("Level() = %v, want %v", logger.Level(), LevelDebug)
	}
}

func TestLogger_LevelChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level     slog.Level
		wantTrace bool
		wantDebug bool
	}{
		{level: LevelTrace, wantTrace: true, wantDebug: true},
		{level: LevelDebug, wantTrace: false, wantDebug: true},
		{level: LevelInfo, wantTrace: false, wantDebug: false},
	}

	for _, tt := range tests {
		l := NewWithWriter(tt.level, &bytes.Buffer{})
		if got := l.IsTraceEnabled(); got != tt.wantTrace {
			t.Errorf("level %v: IsTraceEnabled() = %v, want %v", tt.level, got, tt.wantTrace)
		}
		if got := l.IsDebugEnabled(); got != tt.wantDebug {
			t.Errorf("level %v: IsDebugEnabled() = %v, want %v", tt.level, got, tt.wantDebug)
		}
	}
}

func TestLogger_Trace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(LevelTrace, &buf).Trace("raw frame", "bytes", 42)

	if !strings.Contains(buf.String(), "TRACE raw frame bytes=42") {
		t.Errorf("Trace() output = %q", buf.String())
	}

	buf.Reset()
	NewWithWriter(LevelInfo, &buf).Trace("hidden")
	if buf.Len() != 0 {
		t.Errorf("Trace() at INFO wrote %q, want nothing", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	l := Discard()
	l.Error("dropped")
	if l.IsDebugEnabled() {
		t.Error("Discard logger should not enable debug")
	}
}
