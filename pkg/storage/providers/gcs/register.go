package gcs

import (
	"context"

	"github.com/sgl-project/registry/pkg/logging"
	pkgstorage "github.com/sgl-project/registry/pkg/storage"
)

func init() {
	pkgstorage.MustRegister(pkgstorage.ProviderGCS, func(ctx context.Context, config *pkgstorage.Config, bucket string, logger logging.Interface) (pkgstorage.Backend, error) {
		return NewGCSProvider(ctx, config, bucket, logger)
	})
}
