package logger

// MultiLogger fans each message out to several backends, e.g. stderr and a
// log file.
type MultiLogger struct {
	loggers []Logger
}

func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) each(fn func(Logger)) {
	for _, l := range m.loggers {
		fn(l)
	}
}

func (m *MultiLogger) Debug(format string, args ...interface{}) {
	m.each(func(l Logger) { l.Debug(format, args...) })
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	m.each(func(l Logger) { l.Info(format, args...) })
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	m.each(func(l Logger) { l.Warning(format, args...) })
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	m.each(func(l Logger) { l.Error(format, args...) })
}

// Close closes every backend and returns the first error.
func (m *MultiLogger) Close() error {
	var first error
	m.each(func(l Logger) {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	})
	return first
}

var _ Logger = (*MultiLogger)(nil)
