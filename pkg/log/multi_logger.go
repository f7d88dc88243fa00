package log

// MultiLogger fans each event out to a fixed set of loggers, typically a
// FileLogger and a SlogAdapter.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a logger that forwards to every non-nil logger
// given. Nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch t := l.(type) {
		case nil:
		case *MultiLogger:
			if t != nil {
				m.loggers = append(m.loggers, t.loggers...)
			}
		default:
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Len returns the number of loggers events are forwarded to.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

// Log forwards event to each logger in order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
