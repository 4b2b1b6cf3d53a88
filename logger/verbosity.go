package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: warnings and errors only
	VerbosityInfo  = 1 // -v: + round lifecycle, enqueues, startup
	VerbosityDebug = 2 // -vv: + per-call SOAP detail
	VerbosityTrace = 3 // -vvv: + request/response body previews
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ShouldLogTrace returns true for verbosity >= 3 (-vvv)
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}

// LevelName returns a human-readable name for a verbosity count
func LevelName(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "warn"
	case verbosity == VerbosityInfo:
		return "info"
	case verbosity == VerbosityDebug:
		return "debug"
	default:
		return "trace"
	}
}

// Preview shortens a body for trace logging.
func Preview(body string, n int) string {
	if len(body) <= n {
		return body
	}
	return body[:n] + "..."
}
