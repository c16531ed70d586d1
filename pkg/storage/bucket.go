package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/sgl-project/registry/pkg/logging"
)

// DefaultDeleteConcurrency bounds the parallel deletes of DeleteDirectory.
const DefaultDeleteConcurrency = 64

// BucketOptions tunes a Bucket.
type BucketOptions struct {
	Retry             RetryConfig
	DeleteConcurrency int
	StreamChunkSize   int
	Metrics           *Metrics
}

// Bucket binds one logical bucket to a backend and to one queue per operation kind.
// It holds no retry logic itself: every call builds a task and runs it through
// the matching queue.
type Bucket struct {
	name    string
	backend Backend
	logger  logging.Interface
	metrics *Metrics

	deleteConcurrency int
	streamChunkSize   int

	uploads   *Queue[struct{}]
	downloads *Queue[DownloadResult]
	opens     *Queue[OpenResult]
	deletes   *Queue[bool]
	lists     *Queue[[]ObjectInfo]
}

// NewBucket creates a Bucket named name on top of backend.
func NewBucket(name string, backend Backend, opts BucketOptions, logger logging.Interface) *Bucket {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.DeleteConcurrency <= 0 {
		opts.DeleteConcurrency = DefaultDeleteConcurrency
	}
	if opts.StreamChunkSize <= 0 {
		opts.StreamChunkSize = DefaultStreamChunkSize
	}

	return &Bucket{
		name:              name,
		backend:           backend,
		logger:            logger.WithField("bucket", name),
		metrics:           opts.Metrics,
		deleteConcurrency: opts.DeleteConcurrency,
		streamChunkSize:   opts.StreamChunkSize,
		uploads:           NewQueue[struct{}](name, "upload", opts.Retry, logger, opts.Metrics),
		downloads:         NewQueue[DownloadResult](name, "download", opts.Retry, logger, opts.Metrics),
		opens:             NewQueue[OpenResult](name, "open", opts.Retry, logger, opts.Metrics).WithDiscard(OpenResult.Close),
		deletes:           NewQueue[bool](name, "delete", opts.Retry, logger, opts.Metrics),
		lists:             NewQueue[[]ObjectInfo](name, "list", opts.Retry, logger, opts.Metrics),
	}
}

// Name returns the logical bucket name (publishing, modules, docs or npm).
func (b *Bucket) Name() string { return b.name }

// Backend returns the backend the bucket runs on.
func (b *Bucket) Backend() Backend { return b.backend }

// Upload stores body at path.
func (b *Bucket) Upload(ctx context.Context, path string, body UploadBody, opts UploadOptions) error {
	task := NewUploadTask(b.backend, path, body, opts).
		withChunkSize(b.streamChunkSize).
		withMetrics(b.metrics)
	_, err := b.uploads.Run(ctx, task)
	return err
}

// Download reads the object at path. The boolean is false when it does not exist.
func (b *Bucket) Download(ctx context.Context, path string) ([]byte, bool, error) {
	res, err := b.downloads.Run(ctx, NewDownloadTask(b.backend, path))
	if err != nil {
		return nil, false, err
	}
	return res.Data, res.Found, nil
}

// Open streams the object at path from byte offset. The boolean is false when
// it does not exist. The caller closes the reader.
func (b *Bucket) Open(ctx context.Context, path string, offset int64) (io.ReadCloser, bool, error) {
	res, err := b.opens.Run(ctx, NewOpenTask(b.backend, path, offset))
	if err != nil {
		return nil, false, err
	}
	return res.Reader, res.Reader != nil, nil
}

// Delete removes the object at path. The boolean is true when it was already absent.
func (b *Bucket) Delete(ctx context.Context, path string) (bool, error) {
	return b.deletes.Run(ctx, NewDeleteTask(b.backend, path))
}

// List returns every object under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return b.lists.Run(ctx, NewListTask(b.backend, prefix))
}

// DeleteDirectory removes every object under prefix, at most
// DeleteConcurrency at a time, and returns how many objects were listed.
// Objects that disappear concurrently count as deleted. Every failed delete is
// reported in the returned error.
func (b *Bucket) DeleteDirectory(ctx context.Context, prefix string) (int, error) {
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", prefix, err)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	g.SetLimit(b.deleteConcurrency)

	for _, obj := range objects {
		name := obj.Name
		g.Go(func() error {
			if _, err := b.Delete(ctx, name); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("deleting %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	b.logger.WithField("prefix", prefix).
		WithField("objects", len(objects)).
		Debug("Deleted directory")

	return len(objects), result.ErrorOrNil()
}

// Close shuts down every queue of the bucket, then the backend if it holds
// resources of its own.
func (b *Bucket) Close() {
	b.uploads.Close()
	b.downloads.Close()
	b.opens.Close()
	b.deletes.Close()
	b.lists.Close()

	if closer, ok := b.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to close storage backend")
		}
	}
}
