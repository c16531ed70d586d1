package storage

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/registry/pkg/logging"
)

// ProvideConfig reads and validates the storage configuration from viper.
func ProvideConfig(v *viper.Viper) (*Config, error) {
	config, err := NewConfig(WithViper(v))
	if err != nil {
		return nil, fmt.Errorf("error reading storage configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}
	return config, nil
}

// bucketsParams defines the fx input struct for ProvideBuckets
type bucketsParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *Config
	Metrics   *Metrics
	Logger    logging.Interface
	Registry  *Registry `optional:"true"`
}

// ProvideBuckets creates the logical buckets and closes them when the app stops.
func ProvideBuckets(p bucketsParams) (*Buckets, error) {
	registry := p.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	buckets, err := NewBuckets(context.Background(), p.Config, registry, p.Metrics, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			buckets.Close()
			return nil
		},
	})
	return buckets, nil
}

type metricsParams struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics registers storage metrics with the Registerer in the
// container, or with the default Prometheus registerer if there is none.
func ProvideMetrics(p metricsParams) *Metrics {
	return NewMetrics(p.Registerer)
}

// Module provides *Config, *Metrics and *Buckets.
// Backend packages must be imported for their providers to be registered.
var Module = fx.Options(
	fx.Provide(
		ProvideConfig,
		ProvideMetrics,
		ProvideBuckets,
	),
)
