package log

// Logger receives protocol events from the transport and the dispatcher.
// Log runs on the I/O path, possibly from several goroutines at once, and
// must not block.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a plain function to Logger.
type LoggerFunc func(event Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
