// Package logger provides structured logging with automatic API key redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Per-component loggers ("gemini", "capture", "playback", "session")
//   - Session lifecycle and teardown logging
//   - Automatic API key and sensitive data redaction
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	outputMu  sync.Mutex
	logOutput io.Writer = os.Stderr
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	DefaultLogger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput redirects all subsequent log output, primarily for tests.
// The current level is reset to info.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	logOutput = w
	outputMu.Unlock()
	SetLevel(slog.LevelInfo)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	outputMu.Lock()
	w := logOutput
	outputMu.Unlock()
	DefaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Component returns a logger that tags every record with the given component name.
// Per-component levels set through Configure apply to it.
func Component(name string) *slog.Logger {
	return DefaultLogger.With("component", name)
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is set to LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// StateTransition logs a session lifecycle transition.
func StateTransition(sessionID, from, to string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"session_id", sessionID,
		"from", from,
		"to", to,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("Session state changed", allAttrs...)
}

// ReleaseFailed logs a teardown step that failed. Teardown continues regardless.
func ReleaseFailed(sessionID, resource string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"session_id", sessionID,
		"resource", resource,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Warn("Resource release failed", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),   // Google API keys
		regexp.MustCompile(`([?&]key=)[^&\s]+`),       // key query parameters
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
//
// Supported patterns:
//   - Google keys (AIza...): Shows first 4 chars
//   - URL key parameters (?key=...): Value replaced
//   - Bearer tokens: Shows only "Bearer [REDACTED]"
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer "):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, "?key=") || strings.HasPrefix(match, "&key="):
				return match[:5] + "[REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
