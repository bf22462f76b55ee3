package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"mertoncli/internal/config"
)

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "merton.log")

	cfg := config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Logger is nil")
	}
	if GetLogger() != logger {
		t.Error("GetLogger did not return the initialized logger")
	}

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}

	logger.Info("calibration finished", "code", "005930")

	// Close log file to allow reading on Windows
	CloseLogFile()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal(content, &logEntry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}

	if logEntry["msg"] != "calibration finished" {
		t.Errorf("Expected msg='calibration finished', got %v", logEntry["msg"])
	}
	if logEntry["code"] != "005930" {
		t.Errorf("Expected code='005930', got %v", logEntry["code"])
	}
	if logEntry["level"] != "INFO" {
		t.Errorf("Expected level='INFO', got %v", logEntry["level"])
	}
	if _, ok := logEntry["source"]; !ok {
		t.Error("Expected source location in log entry")
	}
}

func TestInitializeLoggerOnce(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	first, err := InitializeLogger(config.LoggingConfig{Level: "info", Output: "console"})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	second, err := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "console"})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if first != second {
		t.Error("Second InitializeLogger call replaced the global logger")
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Output: "console"}, &buf)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("iteration cap reached", "iterations", 1000)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &logEntry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}
	if logEntry["iterations"] != float64(1000) {
		t.Errorf("Expected iterations=1000, got %v", logEntry["iterations"])
	}
}

func TestNewLoggerBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewLogger(config.LoggingConfig{Output: "file", FilePath: filepath.Join(blocker, "merton.log")}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error when log directory cannot be created")
	}
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Output: "console"}, &buf)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	ctx := WithTraceID(context.Background(), "test-trace-123")
	logger.With("component", "calibration").InfoContext(ctx, "test with trace")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}

	if logEntry["trace_id"] != "test-trace-123" {
		t.Errorf("Expected trace_id='test-trace-123', got %v", logEntry["trace_id"])
	}
	if logEntry["component"] != "calibration" {
		t.Errorf("Expected component='calibration', got %v", logEntry["component"])
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "console"}, &buf)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.Info("calibration finished", "code", "005930")

	out := buf.String()
	if !strings.Contains(out, `msg="calibration finished"`) || !strings.Contains(out, "code=005930") {
		t.Errorf("Expected logfmt output, got %q", out)
	}
}

func TestSpanInjection(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(config.LoggingConfig{Level: "info", Output: "console"}, &buf)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.InfoContext(ctx, "inside span")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}
	if logEntry["otel_trace_id"] != sc.TraceID().String() {
		t.Errorf("Expected otel_trace_id=%s, got %v", sc.TraceID(), logEntry["otel_trace_id"])
	}
	if logEntry["span_id"] != sc.SpanID().String() {
		t.Errorf("Expected span_id=%s, got %v", sc.SpanID(), logEntry["span_id"])
	}
	if _, ok := logEntry["trace_id"]; ok {
		t.Error("Did not expect trace_id without a correlation id")
	}
}

func TestNewLoggerMissingFilePath(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Output: "both"}, &bytes.Buffer{}); err == nil {
		t.Fatal("Expected error when file output has no path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLogLevel(tt.level); got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestEnsureTraceID(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	traceID := GetTraceID(ctx)
	if len(traceID) != 36 {
		t.Errorf("Expected a UUID trace ID, got %q", traceID)
	}

	if GetTraceID(EnsureTraceID(ctx)) != traceID {
		t.Error("EnsureTraceID replaced an existing trace ID")
	}

	//nolint:staticcheck // nil context is tolerated
	if GetTraceID(nil) != "" {
		t.Error("Expected empty trace ID for nil context")
	}
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	decode := func() map[string]interface{} {
		t.Helper()
		entry := map[string]interface{}{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Failed to parse log JSON: %v", err)
		}
		buf.Reset()
		return entry
	}

	WithComponent(logger, "timeseries").Info("test message")
	if entry := decode(); entry["component"] != "timeseries" {
		t.Errorf("Expected component='timeseries', got %v", entry["component"])
	}

	// A plain handler gets the trace ID attached explicitly
	ctx := WithTraceID(context.Background(), "abc")
	LoggerWithContext(ctx, logger).Info("with context")
	if entry := decode(); entry["trace_id"] != "abc" {
		t.Errorf("Expected trace_id='abc', got %v", entry["trace_id"])
	}

	ForFirm(ctx, logger, "9613").Info("firm scoped")
	entry := decode()
	if entry["code"] != "9613" || entry["trace_id"] != "abc" {
		t.Errorf("Expected code and trace_id, got %v", entry)
	}

	ForFirm(context.Background(), logger, "").Info("no firm")
	if _, ok := decode()["code"]; ok {
		t.Error("Did not expect a code attribute for an empty firm code")
	}
}
