package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/logging/ginlog"
	"github.com/sgl-project/registry/pkg/storage"
)

const defaultAdminPort = 9090

type serveOptions struct {
	port            int
	shutdownTimeout time.Duration
}

func newServeCommand() *cobra.Command {
	opts := serveOptions{port: defaultAdminPort, shutdownTimeout: 15 * time.Second}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", opts.port, "port of the admin server")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", opts.shutdownTimeout, "time allowed for in-flight requests on shutdown")
	return cmd
}

func serve(cmd *cobra.Command, opts serveOptions) error {
	app := fx.New(
		appOptions(cmd, fx.Invoke(func(lc fx.Lifecycle, buckets *storage.Buckets, config *storage.Config, gatherer prometheus.Gatherer, logger logging.Interface) {
			registerAdminServer(lc, opts, newAdminRouter(buckets, config, gatherer, logger), logger)
		})),
	)

	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer stopCancel()
	return app.Stop(stopCtx)
}

func registerAdminServer(lc fx.Lifecycle, opts serveOptions, handler http.Handler, logger logging.Interface) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("admin server: %w", err)
			}
			logger.WithField("addr", ln.Addr().String()).Info("Admin server listening")
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("Admin server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, opts.shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// newAdminRouter serves /healthz and /metrics.
func newAdminRouter(buckets *storage.Buckets, config *storage.Config, gatherer prometheus.Gatherer, logger logging.Interface) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.RequestLogger(logger, ginlog.Config{
		LevelByPath: map[string]string{
			"/healthz": "debug",
			"/metrics": "debug",
		},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		names := make([]string, 0, len(storage.BucketNames))
		for _, bucket := range buckets.All() {
			names = append(names, bucket.Name())
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"provider": config.Provider,
			"buckets":  names,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}
