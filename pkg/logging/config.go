package logging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigKey is the root configuration key (in Viper) for this package.
var ConfigKey = "logging"

// Level is the minimum level written.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel parses a case-insensitive level name. The empty string is INFO.
func ParseLevel(level string) (Level, error) {
	l := Level(strings.ToUpper(level))
	if l == "" {
		return LevelInfo, nil
	}
	if _, err := l.zapLevel(); err != nil {
		return "", err
	}
	return l, nil
}

// String implements fmt.Stringer.
func (l Level) String() string { return strings.ToUpper(string(l)) }

func (l Level) zapLevel() (zapcore.Level, error) {
	switch l.String() {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", string(l))
	}
}

// Config holds the configuration for logging.
type Config struct {
	// Debug forces the DEBUG level and the human readable console encoder.
	// Use level=debug to keep JSON output at debug level.
	Debug bool `mapstructure:"debug"`

	// Level defaults to INFO.
	Level Level `mapstructure:"level"`

	// EncodeTimeAsRFC3339Nano writes timestamps as RFC3339Nano instead of
	// the encoder default (ISO8601 for console, epoch for JSON).
	EncodeTimeAsRFC3339Nano bool `mapstructure:"encode_time_rfc3339nano"`

	// DisableConsoleOutput stops writing logs to stdout.
	DisableConsoleOutput bool `mapstructure:"disable_console_output"`

	// Logger configures file output with rotation. No file is written unless
	// Filename is set.
	lumberjack.Logger `mapstructure:",squash"`
}

// Option is a configuration option for logging.
type Option func(*Config) error

// Validate ensures the logging Config is valid.
func (c *Config) Validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("maxsize must be >= 0, not %d", c.MaxSize)
	}
	if c.MaxBackups < 0 {
		return fmt.Errorf("maxbackups must be >= 0, not %d", c.MaxBackups)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("maxage days must be >= 0, not %d", c.MaxAge)
	}
	if _, err := c.Level.zapLevel(); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if c.DisableConsoleOutput && c.Filename == "" {
		return errors.New("console output is disabled and no log file is configured")
	}
	return nil
}

// zapLevel returns the effective level, honouring Debug.
func (c *Config) zapLevel() (zapcore.Level, error) {
	if c.Debug {
		return zapcore.DebugLevel, nil
	}
	return c.Level.zapLevel()
}

// WithViper reads the configuration under ConfigKey.
func WithViper(v *viper.Viper) Option {
	return WithViperKey(v, ConfigKey)
}

// WithViperKey reads the configuration under configKey. A missing key leaves
// the defaults untouched.
func WithViperKey(v *viper.Viper, configKey string) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}
		return v.UnmarshalKey(configKey, c)
	}
}

// WithDebug turns debug logging on or off.
func WithDebug(debug bool) Option {
	return func(c *Config) error {
		c.Debug = debug
		return nil
	}
}

// Apply takes the supplied options and applies them to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig creates a new logging config with the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}
