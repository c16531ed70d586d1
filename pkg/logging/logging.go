package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger from config writing to stdout and, when a
// filename is configured, to a rotated log file.
func NewLogger(config *Config) (*zap.Logger, error) {
	return newLogger(config, zapcore.Lock(os.Stdout))
}

func newLogger(config *Config, console zapcore.WriteSyncer) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	level, err := config.zapLevel()
	if err != nil {
		return nil, err
	}
	encoder := newEncoder(config)

	var cores []zapcore.Core
	if config.Filename != "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(&config.Logger), level))
	}
	if !config.DisableConsoleOutput {
		cores = append(cores, zapcore.NewCore(encoder, console, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func newEncoder(config *Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if config.EncodeTimeAsRFC3339Nano {
		encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}

	if config.Debug {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}
