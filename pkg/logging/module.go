package logging

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module reads the "logging" configuration from Viper and provides both the
// *zap.Logger and the Interface wrapping it. Buffered output is flushed when
// the app stops.
var Module fx.Option = fx.Provide(
	provideZapLogger,
	provideInterface,
)

type zapLoggerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Viper     *viper.Viper
	Debug     bool `name:"debug" optional:"true"`
}

func provideZapLogger(p zapLoggerParams) (*zap.Logger, error) {
	config, err := NewConfig(WithViper(p.Viper))
	if err != nil {
		return nil, fmt.Errorf("error reading logging configuration: %w", err)
	}
	if p.Debug {
		config.Debug = true
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Syncing a terminal fails with EINVAL or ENOTTY; that is not an error.
			if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
				return err
			}
			return nil
		},
	})
	return logger, nil
}

func provideInterface(l *zap.Logger) Interface { return ForZap(l) }
