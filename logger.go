package kvproxy

// Fields carries the structured context of one log line, such as the
// operation, tenant or storage key.
type Fields map[string]any

// Logger receives the proxy's operational messages. Store faults are logged
// at Warn, a stored value that is not JSON at Error, batch item rejections at Debug.
// Adapters for zap, logrus and slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything. New uses it when Options.Logger is nil.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
