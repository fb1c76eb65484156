package safety

// Logger is an optional logging interface. Any structured logging
// library can be adapted to it:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	mgr := safety.NewManager(safety.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs detailed diagnostic information
	Debug(msg string, keysAndValues ...interface{})

	// Info logs general operational information
	Info(msg string, keysAndValues ...interface{})

	// Error logs error conditions
	Error(msg string, keysAndValues ...interface{})
}
