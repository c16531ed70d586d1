package logging

type nopLogger struct{}

// NewNopLogger returns a logger that drops every message. Fatal does not exit.
func NewNopLogger() Interface {
	return nopLogger{}
}

func (n nopLogger) WithField(string, any) Interface { return n }
func (n nopLogger) WithFields(Fields) Interface     { return n }
func (n nopLogger) WithError(error) Interface       { return n }

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
func (nopLogger) Fatal(string) {}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Fatalf(string, ...any) {}
