package ldmlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Log is the process-wide logger, initialized to a sensible default and
// reconfigurable at startup from the daemon's YAML config.
var Log = New(LevelInfo, os.Stderr)

// Logger wraps an slog.Logger to give every call site the component-first
// call shape used across this codebase: Log.Info(component, msg, "k", v).
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
}

// New constructs a Logger at the given minimum level, writing slog text lines
// to w with the timestamp dropped: level=... msg="{component}: {message}"
// followed by the key/value pairs. Lines are not in the bare
// "{level} {component}: {message}" form, and LevelTrace and LevelFatal are
// rendered by slog as DEBUG-4 and ERROR+4.
func New(level Level, w *os.File) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(slog.Level(level))
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	return &Logger{slog: slog.New(h), level: lv}
}

// SetLevel changes the minimum level logged from this point on.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(slog.Level(level))
}

// component renders the first log-call argument (anything with a String
// method, or a plain value) into the "{component}:" prefix.
func component(c any) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	if c == nil {
		return "-"
	}
	return fmt.Sprint(c)
}

// Trace logs a trace-level line naming component, in the style "{component}: {message}".
func (l *Logger) Trace(c any, msg string, kv ...any) {
	l.log(LevelTrace, c, msg, kv...)
}

// Debug logs a debug-level line naming component.
func (l *Logger) Debug(c any, msg string, kv ...any) {
	l.log(LevelDebug, c, msg, kv...)
}

// Info logs an info-level line naming component.
func (l *Logger) Info(c any, msg string, kv ...any) {
	l.log(LevelInfo, c, msg, kv...)
}

// Warn logs a warn-level line naming component.
func (l *Logger) Warn(c any, msg string, kv ...any) {
	l.log(LevelWarn, c, msg, kv...)
}

// Error logs an error-level line naming component.
func (l *Logger) Error(c any, msg string, kv ...any) {
	l.log(LevelError, c, msg, kv...)
}

// Fatal logs a fatal-level line naming component and exits the process.
func (l *Logger) Fatal(c any, msg string, kv ...any) {
	l.log(LevelFatal, c, msg, kv...)
	os.Exit(1)
}

func (l *Logger) log(level Level, c any, msg string, kv ...any) {
	l.slog.Log(context.Background(), slog.Level(level), component(c)+": "+msg, kv...)
}
