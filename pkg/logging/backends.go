package logging

import (
	"sort"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

type zapWrapper struct {
	logger *zap.Logger
}

// ForZap adapts a zap logger. Caller information points at the code calling
// the Interface methods, not at this adapter.
func ForZap(logger *zap.Logger) Interface {
	return zapWrapper{logger: logger.WithOptions(zap.AddCaller(), zap.AddCallerSkip(1))}
}

func (l zapWrapper) WithField(key string, value any) Interface {
	return zapWrapper{l.logger.With(zap.Any(key, value))}
}

func (l zapWrapper) WithFields(fields Fields) Interface {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zapFields := make([]zap.Field, 0, len(fields))
	for _, k := range keys {
		zapFields = append(zapFields, zap.Any(k, fields[k]))
	}
	return zapWrapper{l.logger.With(zapFields...)}
}

func (l zapWrapper) WithError(err error) Interface {
	return zapWrapper{l.logger.With(zap.Error(err))}
}

func (l zapWrapper) Debug(msg string) { l.logger.Debug(msg) }
func (l zapWrapper) Info(msg string)  { l.logger.Info(msg) }
func (l zapWrapper) Warn(msg string)  { l.logger.Warn(msg) }
func (l zapWrapper) Error(msg string) { l.logger.Error(msg) }
func (l zapWrapper) Fatal(msg string) { l.logger.Fatal(msg) }

func (l zapWrapper) Debugf(format string, args ...any) { l.logger.Debug(fmtMsg(format, args)) }
func (l zapWrapper) Infof(format string, args ...any)  { l.logger.Info(fmtMsg(format, args)) }
func (l zapWrapper) Warnf(format string, args ...any)  { l.logger.Warn(fmtMsg(format, args)) }
func (l zapWrapper) Errorf(format string, args ...any) { l.logger.Error(fmtMsg(format, args)) }
func (l zapWrapper) Fatalf(format string, args ...any) { l.logger.Fatal(fmtMsg(format, args)) }

type logrusWrapper struct {
	entry *logrus.Entry
}

// ForLogrus adapts a logrus entry.
func ForLogrus(entry *logrus.Entry) Interface {
	return logrusWrapper{entry: entry}
}

func (l logrusWrapper) WithField(key string, value any) Interface {
	return logrusWrapper{l.entry.WithField(key, value)}
}

func (l logrusWrapper) WithFields(fields Fields) Interface {
	return logrusWrapper{l.entry.WithFields(logrus.Fields(fields))}
}

func (l logrusWrapper) WithError(err error) Interface {
	return logrusWrapper{l.entry.WithError(err)}
}

func (l logrusWrapper) Debug(msg string) { l.entry.Debug(msg) }
func (l logrusWrapper) Info(msg string)  { l.entry.Info(msg) }
func (l logrusWrapper) Warn(msg string)  { l.entry.Warn(msg) }
func (l logrusWrapper) Error(msg string) { l.entry.Error(msg) }
func (l logrusWrapper) Fatal(msg string) { l.entry.Fatal(msg) }

func (l logrusWrapper) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l logrusWrapper) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l logrusWrapper) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l logrusWrapper) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
func (l logrusWrapper) Fatalf(format string, args ...any) { l.entry.Fatalf(format, args...) }
