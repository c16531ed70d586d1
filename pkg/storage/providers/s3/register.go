package s3

import (
	"context"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

func init() {
	storage.MustRegister(storage.ProviderS3, func(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (storage.Backend, error) {
		return NewS3Provider(ctx, config, bucket, logger)
	})
}
