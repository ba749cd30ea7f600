// Package logger provides the leveled logging interface shared by the
// mogwai daemon, its scheduling core and the command-line client.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Logger is a printf-style leveled logger.
type Logger interface {
	// Debug logs diagnostic detail such as why a connection was judged
	// unsafe for downloads. Backends may drop it.
	Debug(format string, args ...interface{})

	Info(format string, args ...interface{})

	Warning(format string, args ...interface{})

	Error(format string, args ...interface{})

	// Close releases resources held by the logger. Safe to call multiple times.
	Close() error
}

// StandardLogger writes to a stdlib *log.Logger with a level prefix.
type StandardLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStandardLogger creates a logger that wraps l. Debug messages are
// dropped until SetDebug(true) is called.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// SetDebug enables or disables Debug output. Not safe for concurrent use
// with logging calls; set it during start-up.
func (s *StandardLogger) SetDebug(enabled bool) {
	s.debug = enabled
}

func (s *StandardLogger) Debug(format string, args ...interface{}) {
	if s.debug {
		s.logger.Printf("[DEBUG] "+format, args...)
	}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards all messages.
type NopLogger struct{}

func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(format string, args ...interface{})   {}
func (n *NopLogger) Info(format string, args ...interface{})    {}
func (n *NopLogger) Warning(format string, args ...interface{}) {}
func (n *NopLogger) Error(format string, args ...interface{})   {}
func (n *NopLogger) Close() error                               { return nil }

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// OrNop returns l, or a NopLogger if l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// ToStdLogger returns a *log.Logger whose output is sent to l at Info
// level, one message per line. Used for libraries that take *log.Logger.
func ToStdLogger(l Logger) *log.Logger {
	return log.New(&lineWriter{l: l}, "", 0)
}

type lineWriter struct {
	l Logger
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\n"); msg != "" {
		w.l.Info("%s", msg)
	}
	return len(p), nil
}

var _ io.Writer = (*lineWriter)(nil)

// MockLogger records formatted messages for tests. It is safe for
// concurrent use.
type MockLogger struct {
	mu           sync.Mutex
	DebugCalls   []string
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(dst *[]string, format string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(&m.DebugCalls, format, args)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.InfoCalls, format, args)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.WarningCalls, format, args)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.ErrorCalls, format, args)
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	return nil
}

// Warnings returns a copy of the recorded warnings.
func (m *MockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.WarningCalls...)
}

// Errors returns a copy of the recorded errors.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

var _ Logger = (*MockLogger)(nil)
