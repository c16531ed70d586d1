package logging

import (
	"fmt"
)

// Interface decouples callers from the logging library in use. Storage code
// logs through it with structured fields; the zap and logrus adapters below
// and the no-op logger implement it.
type Interface interface {
	WithField(key string, value any) Interface
	WithFields(fields Fields) Interface
	WithError(err error) Interface

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	// Prefer WithField over the printf-like methods.
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Fields is a set of structured log fields.
type Fields map[string]any

func fmtMsg(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
