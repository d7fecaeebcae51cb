package log

import "context"

// Fields are structured key/value pairs attached to a log entry.
type Fields = map[string]any

// Logger is the logging surface used across the services. Implementations
// attach trace correlation from ctx when a span is active.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)
	With(fields Fields) Logger
}

// HashPrefix shortens a token hash for log output. Full hashes are never
// logged.
func HashPrefix(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}
