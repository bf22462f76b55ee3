package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Entry is one captured log record with its attributes flattened. Keys
// inside groups read "group.key".
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder is a slog.Handler that keeps every record in memory. Loggers
// derived with With or WithGroup append to the same recorder.
type LogRecorder struct {
	sink   *sink
	attrs  []slog.Attr
	prefix string
}

type sink struct {
	mu      sync.Mutex
	entries []Entry
	t       testing.TB
}

// NewTestLogger returns a debug-level logger and the recorder behind it.
// With a non-nil t every record is echoed through t.Logf.
func NewTestLogger(t testing.TB) (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{sink: &sink{t: t}}
	return slog.New(rec), rec
}

func (h *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: make(map[string]any, len(h.attrs)+r.NumAttrs())}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		e.Attrs[h.prefix+a.Key] = a.Value.Any()
		return true
	})

	h.sink.mu.Lock()
	h.sink.entries = append(h.sink.entries, e)
	h.sink.mu.Unlock()

	if h.sink.t != nil {
		h.sink.t.Logf("[%s] %s %v", e.Level, e.Message, e.Attrs)
	}
	return nil
}

func (h *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &LogRecorder{sink: h.sink, prefix: h.prefix}
	next.attrs = append(append(next.attrs, h.attrs...), prefixed(h.prefix, attrs)...)
	return next
}

func (h *LogRecorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &LogRecorder{sink: h.sink, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

// Entries returns a copy of everything recorded so far
func (h *LogRecorder) Entries() []Entry {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]Entry(nil), h.sink.entries...)
}

// AtLevel returns the entries recorded at exactly level
func (h *LogRecorder) AtLevel(level slog.Level) []Entry {
	var out []Entry
	for _, e := range h.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasMessage reports whether any entry's message contains substr
func (h *LogRecorder) HasMessage(substr string) bool {
	for _, e := range h.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// HasAttr reports whether any entry carries key with exactly value
func (h *LogRecorder) HasAttr(key string, value any) bool {
	for _, e := range h.Entries() {
		if v, ok := e.Attrs[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Len is the number of recorded entries
func (h *LogRecorder) Len() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.entries)
}

// Reset drops every recorded entry
func (h *LogRecorder) Reset() {
	h.sink.mu.Lock()
	h.sink.entries = nil
	h.sink.mu.Unlock()
}

// AssertLogContains fails t unless an entry at level contains message
func AssertLogContains(t testing.TB, h *LogRecorder, level slog.Level, message string) {
	t.Helper()
	entries := h.AtLevel(level)
	for _, e := range entries {
		if strings.Contains(e.Message, message) {
			return
		}
	}
	t.Errorf("no %s log containing %q; got %d entries at that level", level, message, len(entries))
	for _, e := range entries {
		t.Logf("  %s", e.Message)
	}
}

// AssertLogAttr fails t unless some entry carries key=value
func AssertLogAttr(t testing.TB, h *LogRecorder, key string, value any) {
	t.Helper()
	if h.HasAttr(key, value) {
		return
	}
	t.Errorf("no log attribute %s=%v", key, value)
	for _, e := range h.Entries() {
		t.Logf("  %s: %v", e.Message, e.Attrs)
	}
}

// AssertNoErrors fails t for every entry logged at error level
func AssertNoErrors(t testing.TB, h *LogRecorder) {
	t.Helper()
	for _, e := range h.AtLevel(slog.LevelError) {
		t.Errorf("unexpected error log: %s %v", e.Message, e.Attrs)
	}
}
