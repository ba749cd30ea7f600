package logger

import (
	"fmt"
	"log"
	"os"
)

// FileLogger is a StandardLogger that appends to a file it owns.
type FileLogger struct {
	*StandardLogger
	f *os.File
}

// OpenFile opens path for appending, creating it with mode 0644.
func OpenFile(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return &FileLogger{
		StandardLogger: NewStandardLogger(log.New(f, "", log.LstdFlags)),
		f:              f,
	}, nil
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
