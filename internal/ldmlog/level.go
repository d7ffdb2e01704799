// Package ldmlog provides the structured logger used throughout the LDM-7
// fabric: every call names the component first (anything with a String()
// method), and the component heads the logged message as
// "{component}: {message}".
package ldmlog

import "fmt"

// Level is a logging severity, ordered the same way slog's levels are.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12
)

// Parses a string representation of a log level (TRACE, DEBUG, INFO, WARN, ERROR, FATAL) into a Level value, returning an error for invalid inputs.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level: %s", s)
}

// Returns the human-readable string representation of a logging level, or "UNKNOWN" for invalid values.
func (level Level) String() string {
	switch level {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
