package storage

import (
	"context"
	"fmt"

	"github.com/sgl-project/registry/pkg/logging"
)

// Buckets is the set of logical buckets used by the registry.
type Buckets struct {
	Publishing *Bucket
	Modules    *Bucket
	Docs       *Bucket
	Npm        *Bucket
}

// NewBuckets creates every logical bucket from config using the backends in registry.
func NewBuckets(ctx context.Context, config *Config, registry *Registry, metrics *Metrics, logger logging.Interface) (*Buckets, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := BucketOptions{
		Retry:             config.Retry,
		DeleteConcurrency: config.DeleteConcurrency,
		StreamChunkSize:   config.StreamChunkSize,
		Metrics:           metrics,
	}

	buckets := &Buckets{}
	for _, logical := range BucketNames {
		name, err := config.Buckets.Name(logical)
		if err != nil {
			buckets.Close()
			return nil, err
		}
		backend, err := registry.Create(ctx, config, name, logger)
		if err != nil {
			buckets.Close()
			return nil, fmt.Errorf("failed to create %s backend for bucket %s: %w", config.Provider, logical, err)
		}
		buckets.set(logical, NewBucket(logical, backend, opts, logger))

		logger.WithField("provider", config.Provider).
			WithField("bucket", logical).
			WithField("name", name).
			Info("Storage bucket initialized")
	}
	return buckets, nil
}

func (b *Buckets) set(logical string, bucket *Bucket) {
	switch logical {
	case BucketPublishing:
		b.Publishing = bucket
	case BucketModules:
		b.Modules = bucket
	case BucketDocs:
		b.Docs = bucket
	case BucketNpm:
		b.Npm = bucket
	}
}

// Get returns the logical bucket called name.
func (b *Buckets) Get(name string) (*Bucket, error) {
	var bucket *Bucket
	switch name {
	case BucketPublishing:
		bucket = b.Publishing
	case BucketModules:
		bucket = b.Modules
	case BucketDocs:
		bucket = b.Docs
	case BucketNpm:
		bucket = b.Npm
	}
	if bucket == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, name)
	}
	return bucket, nil
}

// All returns the buckets that exist, in BucketNames order.
func (b *Buckets) All() []*Bucket {
	var all []*Bucket
	for _, name := range BucketNames {
		if bucket, err := b.Get(name); err == nil {
			all = append(all, bucket)
		}
	}
	return all
}

// Close shuts down every bucket.
func (b *Buckets) Close() {
	for _, bucket := range b.All() {
		bucket.Close()
	}
}
