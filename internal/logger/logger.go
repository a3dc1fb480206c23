package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

type Logger struct {
	logger *slog.Logger
	level  LogLevel
	tag    string
}

// NewLogger wraps an slog handler. A nil handler discards everything, which
// is what tests usually want.
func NewLogger(h slog.Handler, level LogLevel) *Logger {
	l := &Logger{level: level}
	if h != nil {
		l.logger = slog.New(h)
	}
	return l
}

// Open builds the process logger: text on stdout, plus a rotating JSON file
// when logFile is non-empty.
func Open(level LogLevel, logFile string) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var out io.Writer = os.Stdout
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, journald adds its own timestamps
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	var h slog.Handler = slog.NewTextHandler(out, opts)

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename: logFile,
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
		h = teeHandler{h, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})}
	}

	return NewLogger(h, level), nil
}

// WithTag creates a new logger with a tag prefix
func (l *Logger) WithTag(tag string) *Logger {
	n := &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
	}
	if n.logger != nil {
		n.logger = n.logger.With(slog.String("component", tag))
	}
	return n
}

func (l *Logger) enabled(level LogLevel) bool {
	return l != nil && l.logger != nil && l.level >= level
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info(fmt.Sprintf(format, v...))
	}
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled(LogLevelWarning) {
		l.logger.Warn(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.enabled(LogLevelError) {
		l.logger.Error(fmt.Sprintf(format, v...))
	}
}

// Fatalf logs regardless of level and exits the process.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if l != nil && l.logger != nil {
		l.logger.Error("FATAL: " + msg)
	} else {
		fmt.Fprintln(os.Stderr, "FATAL: "+msg)
	}
	os.Exit(1)
}

// teeHandler sends each record to both handlers.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	errA := t.a.Handle(ctx, r.Clone())
	errB := t.b.Handle(ctx, r)
	if errA != nil {
		return errA
	}
	return errB
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}
