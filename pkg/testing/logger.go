package testing

import (
	"github.com/stretchr/testify/mock"

	"github.com/sgl-project/registry/pkg/logging"
)

// MockLogger implements logging.Interface for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string) { m.Called(msg) }
func (m *MockLogger) Info(msg string)  { m.Called(msg) }
func (m *MockLogger) Warn(msg string)  { m.Called(msg) }
func (m *MockLogger) Error(msg string) { m.Called(msg) }
func (m *MockLogger) Fatal(msg string) { m.Called(msg) }

func (m *MockLogger) Debugf(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Infof(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Warnf(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Errorf(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Fatalf(format string, args ...any) { m.Called(format, args) }

func (m *MockLogger) WithField(key string, value any) logging.Interface {
	args := m.Called(key, value)
	return args.Get(0).(logging.Interface)
}

func (m *MockLogger) WithFields(fields logging.Fields) logging.Interface {
	args := m.Called(fields)
	return args.Get(0).(logging.Interface)
}

func (m *MockLogger) WithError(err error) logging.Interface {
	args := m.Called(err)
	return args.Get(0).(logging.Interface)
}

// SetupMockLogger creates a mock logger that returns itself for chaining
// methods and accepts any message. Check messages afterwards with
// m.AssertCalled(t, "Error", "Storage task out of attempts").
func SetupMockLogger() *MockLogger {
	m := &MockLogger{}

	m.On("WithField", mock.Anything, mock.Anything).Return(m).Maybe()
	m.On("WithFields", mock.Anything).Return(m).Maybe()
	m.On("WithError", mock.Anything).Return(m).Maybe()

	for _, method := range []string{"Debug", "Info", "Warn", "Error"} {
		m.On(method, mock.Anything).Maybe()
		m.On(method+"f", mock.Anything, mock.Anything).Maybe()
	}
	return m
}
