package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"diveops/internal/config"
)

type contextKey string

// TraceIDContextKey is the context key under which the request trace id is kept
const TraceIDContextKey contextKey = "trace_id"

// logFile is the file handle owned by the process logger, if any
var logFile struct {
	sync.Mutex
	f *os.File
}

var process struct {
	once   sync.Once
	logger *slog.Logger
}

// InitializeLogger builds the process logger from cfg and installs it as the
// slog default. Later calls return the first logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	process.once.Do(func() {
		process.logger, err = NewLogger(cfg, os.Stdout)
		if process.logger != nil {
			slog.SetDefault(process.logger)
		}
	})
	return process.logger, err
}

// GetLogger returns the process logger, or slog.Default() before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	if process.logger == nil {
		return slog.Default()
	}
	return process.logger
}

// NewLogger builds a logger for cfg. Console output goes to console; file
// output goes to cfg.FilePath, which is created if needed.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, error) {
	out, err := logWriter(cfg, console)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLogLevel(cfg.Level),
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(traceHandler{next: handler}), nil
}

func logWriter(cfg config.LoggingConfig, console io.Writer) (io.Writer, error) {
	output := strings.ToLower(cfg.Output)
	if output != "file" && output != "both" {
		return console, nil
	}

	f, err := openLogFile(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	logFile.Lock()
	if logFile.f != nil {
		_ = logFile.f.Close()
	}
	logFile.f = f
	logFile.Unlock()

	if output == "both" {
		return io.MultiWriter(console, f), nil
	}
	return f, nil
}

// traceHandler stamps records with the trace id found in their context,
// preferring the request trace id over the OTel span id.
type traceHandler struct {
	next slog.Handler
}

func (h traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	id := GetTraceID(ctx)
	if id == "" {
		id = TraceIDFromContext(ctx)
	}
	if id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	return h.next.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{next: h.next.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "warning":
		return slog.LevelWarn
	default:
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return slog.LevelInfo
		}
		return l
	}
}

// WithTraceID returns ctx carrying traceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the trace id carried by ctx, or ""
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDContextKey).(string)
	return id
}

// CloseLogFile closes the log file opened by the process logger, if any
func CloseLogFile() error {
	logFile.Lock()
	defer logFile.Unlock()
	if logFile.f == nil {
		return nil
	}
	err := logFile.f.Close()
	logFile.f = nil
	return err
}

// ResetLoggerForTesting forgets the process logger so a test can initialize
// a fresh one.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	process.logger = nil
	process.once = sync.Once{}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}
