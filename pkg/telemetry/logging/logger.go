package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// LogFormat represents the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON LogFormat = "json"
	// FormatText outputs logs in plain text format.
	FormatText LogFormat = "text"
)

// Fields carries the structured data of a log entry.
type Fields map[string]any

// Entry is a single diagnostic log record before formatting.
type Entry struct {
	Time     time.Time
	Level    slog.Level
	Category Category
	Message  string
	Fields   Fields
}

// Logger emits categorized diagnostic entries through a slog.Handler. The
// handler is the sink: swapping it changes where entries go without touching
// the code that produces them.
type Logger struct {
	handler slog.Handler
	level   *slog.LevelVar
	now     func() time.Time
}

// Config contains configuration for the Logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Case-insensitive.
	Level string

	// Format is the output format ("json", "text").
	Format string

	// AddSource includes file and line number in logs.
	AddSource bool

	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer
}

// New creates a new Logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{
		handler: handler,
		level:   levelVar,
		now:     time.Now,
	}, nil
}

// NewWithHandler wraps an existing handler. Entries below level are dropped
// before they reach h.
func NewWithHandler(h slog.Handler, level slog.Level) *Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	return &Logger{
		handler: h,
		level:   levelVar,
		now:     time.Now,
	}
}

// Default returns a Logger that writes through slog's default handler at
// INFO.
func Default() *Logger {
	return NewWithHandler(slog.Default().Handler(), slog.LevelInfo)
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelError+1)
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Enabled reports whether entries at level would be emitted.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.level.Level()
}

// Slog returns a plain slog.Logger sharing this logger's sink and level,
// for uncategorized logging such as access logs.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(levelFilter{Handler: l.handler, level: l.level})
}

// Emit filters e by level and hands it to the sink. Fields are written in
// key order so output is stable.
func (l *Logger) Emit(ctx context.Context, e Entry) {
	if !l.Enabled(e.Level) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.Time.IsZero() {
		e.Time = l.now()
	}

	record := slog.NewRecord(e.Time, e.Level, e.Message, 0)
	record.AddAttrs(slog.String("category", string(e.Category)))
	if requestID := GetRequestID(ctx); requestID != "" {
		record.AddAttrs(slog.String("request_id", requestID))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.AddAttrs(slog.Any(k, e.Fields[k]))
	}

	// A failing sink must not affect request handling.
	_ = l.handler.Handle(ctx, record)
}

// ParseLevel parses a log level name, case-insensitively. An empty name
// means INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// parseFormat parses a log format string into LogFormat.
func parseFormat(formatStr string) (LogFormat, error) {
	switch strings.ToLower(formatStr) {
	case "json", "":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}

// levelFilter applies the logger's runtime level to plain slog calls.
type levelFilter struct {
	slog.Handler
	level *slog.LevelVar
}

func (f levelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.level.Level() && f.Handler.Enabled(ctx, level)
}

func (f levelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelFilter{Handler: f.Handler.WithAttrs(attrs), level: f.level}
}

func (f levelFilter) WithGroup(name string) slog.Handler {
	return levelFilter{Handler: f.Handler.WithGroup(name), level: f.level}
}
