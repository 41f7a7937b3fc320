package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentSweep, Output: &buf})

	logger.Info("Sweep started", FieldScheduleID, "s-1")

	out := buf.String()
	if !strings.Contains(out, "component=sweep") {
		t.Errorf("expected component in output, got %q", out)
	}
	if !strings.Contains(out, "schedule_id=s-1") {
		t.Errorf("expected schedule_id in output, got %q", out)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Component: ComponentApp, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing, got %q", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := New(DefaultConfig()).WithComponent(ComponentWorker)
	ctx := NewContext(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Errorf("FromContext returned a different logger")
	}
	if got := FromContext(context.Background()).Component(); got != "unknown" {
		t.Errorf("fallback component = %q, want unknown", got)
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentEngine).
		WithOperation(OpGenerate).
		WithEntry("s-1", "e-1", "2024-03").
		WithError(nil)

	if _, ok := fields[FieldError]; ok {
		t.Error("nil error should not add an error field")
	}
	if fields[FieldPeriod] != "2024-03" {
		t.Errorf("period = %v, want 2024-03", fields[FieldPeriod])
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(fields))
	}
}
