package local

import (
	"context"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

func init() {
	storage.MustRegister(storage.ProviderLocal, func(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (storage.Backend, error) {
		return NewLocalProvider(ctx, config, bucket, logger)
	})
}
