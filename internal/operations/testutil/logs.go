package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// LogEntry is one captured log record with the attributes of its logger
// and of the call flattened into Attrs.
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// LogRecorder is an slog.Handler that keeps every record for assertions
type LogRecorder struct {
	sink  *logSink
	attrs []slog.Attr
	t     *testing.T
}

// NewLogRecorder returns a logger and the recorder behind it. Records are
// echoed to t.Log when t is non-nil.
func NewLogRecorder(t *testing.T) (*slog.Logger, *LogRecorder) {
	r := &LogRecorder{sink: &logSink{}, t: t}
	return slog.New(r), r
}

// Enabled implements slog.Handler
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, len(r.attrs)+rec.NumAttrs())
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, LogEntry{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	r.sink.mu.Unlock()

	if r.t != nil {
		r.t.Logf("[%s] %s %v", rec.Level, rec.Message, attrs)
	}
	return nil
}

// WithAttrs implements slog.Handler. Derived loggers share the sink.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &LogRecorder{sink: r.sink, attrs: merged, t: r.t}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *LogRecorder) WithGroup(string) slog.Handler {
	return r
}

// Entries returns a copy of the captured records
func (r *LogRecorder) Entries() []LogEntry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	return append([]LogEntry(nil), r.sink.entries...)
}

// Find returns the records with the given message
func (r *LogRecorder) Find(message string) []LogEntry {
	var out []LogEntry
	for _, e := range r.Entries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}
