package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/registry/pkg/configutils"
	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

// envPrefix prefixes every environment variable read by the CLI, e.g.
// REGISTRY_STORAGE_PROVIDER.
const envPrefix = "REGISTRY"

var configFilePath string
var debug bool

// commandEnv is what a storage command runs against.
type commandEnv struct {
	buckets *storage.Buckets
	logger  logging.Interface
	in      io.Reader
	out     io.Writer
}

func configProvider(cmd *cobra.Command) fx.Option {
	return configutils.ProvideViper(configutils.ViperOptions{
		EnvPrefix:  envPrefix,
		ConfigFile: configFilePath,
		Flags:      cmd.Flags(),
		Bindings: []configutils.EnvBinding{
			{Key: storage.ConfigKey, Target: &storage.Config{}},
			{Key: logging.ConfigKey, Target: &logging.Config{}},
		},
	})
}

// newMetricsRegistry is the registry behind /metrics. A registry per app
// keeps repeated runs in one process from colliding on registration.
func newMetricsRegistry() (*prometheus.Registry, prometheus.Registerer, prometheus.Gatherer) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, registry, registry
}

// appOptions wires configuration, logging, metrics and the storage buckets.
func appOptions(cmd *cobra.Command, extra ...fx.Option) fx.Option {
	options := []fx.Option{
		configProvider(cmd),
		fx.Supply(fx.Annotated{Name: "debug", Target: debug}),
		fx.Provide(newMetricsRegistry),
		logging.Module,
		logging.UseLoggingInterface,
		storage.Module,
	}
	return fx.Options(append(options, extra...)...)
}

// runWithBuckets starts the app, runs action and stops the app again, which
// closes every bucket.
func runWithBuckets(cmd *cobra.Command, action func(ctx context.Context, env *commandEnv) error) error {
	var (
		buckets *storage.Buckets
		logger  logging.Interface
	)
	app := fx.New(appOptions(cmd), fx.Populate(&buckets, &logger))

	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	actionErr := action(ctx, &commandEnv{
		buckets: buckets,
		logger:  logger,
		in:      cmd.InOrStdin(),
		out:     cmd.OutOrStdout(),
	})

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop cleanly")
	}
	return actionErr
}
