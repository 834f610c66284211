package bootstrap

// Logger defines the interface for application logging.
// It uses key-value pairs and is satisfied directly by *slog.Logger:
//
//	logger.Info("Service started", "service", "*storage.Store")
type Logger interface {
	// Info logs normal lifecycle events such as service start and stop.
	Info(msg string, args ...any)

	// Error logs failures returned by services or handlers.
	Error(msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(msg string, args ...any)

	// Debug logs registration details and other diagnostics.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
