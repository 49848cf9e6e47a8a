package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the name of the log file created inside a session directory.
const FileName = "montage.log"

// Logger provides structured logging with context propagation.
// It is safe for concurrent use; child loggers share the parent's writer.
type Logger struct {
	logger *slog.Logger
	closer *closer
}

// closer owns the underlying file so that child loggers never close it twice.
type closer struct {
	mu sync.Mutex
	c  io.Closer
}

func (c *closer) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c == nil {
		return nil
	}
	err := c.c.Close()
	c.c = nil
	return err
}

// NewLogger creates a Logger that writes JSON lines to {sessionDir}/montage.log.
// If sessionDir is empty, logs are written to stderr.
func NewLogger(sessionDir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(sessionDir, level, RotationConfig{})
}

// NewLoggerWithRotation is like NewLogger but rotates the log file once it
// exceeds rotation.MaxSizeMB. A zero RotationConfig disables rotation.
func NewLoggerWithRotation(sessionDir string, level string, rotation RotationConfig) (*Logger, error) {
	if sessionDir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}

	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	rw, err := NewRotatingWriter(filepath.Join(sessionDir, FileName), rotation)
	if err != nil {
		return nil, err
	}

	l := NewWriterLogger(rw, level)
	l.closer = &closer{c: rw}
	return l, nil
}

// NewWriterLogger creates a Logger writing JSON lines to w. The caller keeps
// ownership of w; Close on the returned logger is a no-op.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun returns a child Logger that tags every entry with the run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithTopic returns a child Logger that tags every entry with a topic ID.
func (l *Logger) WithTopic(topicID string) *Logger {
	return l.With("topic", topicID)
}

// WithRequest returns a child Logger that tags every entry with a
// generation request ID.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("request_id", requestID)
}

// WithComponent returns a child Logger that tags every entry with the
// emitting component ("negotiation", "resilience", ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// With returns a child Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{
		logger: l.logger.With(args...),
		closer: l.closer,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Close flushes and closes the log file, if this logger owns one.
// Closing any logger in a With-chain closes the shared file.
func (l *Logger) Close() error {
	return l.closer.Close()
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// ParseLevel normalizes a user-provided level string.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
