package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sgl-project/registry/pkg/logging"
	pkgstorage "github.com/sgl-project/registry/pkg/storage"
)

// streamChunkSize is the resumable upload chunk size used by PutStream.
const streamChunkSize = 8 * 1024 * 1024

// GCSProvider is a storage.Backend for one bucket of a GCS-compatible service.
type GCSProvider struct {
	client gcsClient
	bucket string
	logger logging.Interface
}

// Ensure GCSProvider implements the Backend interface
var _ pkgstorage.Backend = (*GCSProvider)(nil)

// NewGCSProvider creates a backend for bucket from the gcs section of config.
// The client's own retries are turned off; the storage queues retry instead.
func NewGCSProvider(ctx context.Context, config *pkgstorage.Config, bucket string, logger logging.Interface) (*GCSProvider, error) {
	if config.Provider != pkgstorage.ProviderGCS {
		return nil, fmt.Errorf("invalid provider: expected %s, got %s", pkgstorage.ProviderGCS, config.Provider)
	}
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var clientOpts []option.ClientOption
	if config.GCS.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(config.GCS.Endpoint))
	}
	if config.GCS.WithoutAuthentication {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	} else if config.GCS.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.GCS.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	client.SetRetry(storage.WithPolicy(storage.RetryNever))

	logger.WithField("provider", "gcs").
		WithField("bucket", bucket).
		WithField("endpoint", config.GCS.Endpoint).
		Debug("GCS storage provider initialized")

	return newGCSProvider(&clientWrapper{client}, bucket, logger), nil
}

func newGCSProvider(client gcsClient, bucket string, logger logging.Interface) *GCSProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GCSProvider{client: client, bucket: bucket, logger: logger}
}

// Provider returns the storage provider type
func (p *GCSProvider) Provider() pkgstorage.Provider {
	return pkgstorage.ProviderGCS
}

// Bucket returns the GCS bucket name
func (p *GCSProvider) Bucket() string {
	return p.bucket
}

func (p *GCSProvider) object(name string) gcsObjectHandle {
	return p.client.Bucket(p.bucket).Object(name)
}

// Get reads the whole object.
func (p *GCSProvider) Get(ctx context.Context, name string) ([]byte, error) {
	reader, err := p.object(name).NewRangeReader(ctx, 0, -1)
	if err != nil {
		return nil, wrapError("get", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, wrapError("get", name, err)
	}
	return data, nil
}

// Open streams the object from offset to its end.
func (p *GCSProvider) Open(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	reader, err := p.object(name).NewRangeReader(ctx, offset, -1)
	if err != nil {
		return nil, wrapError("open", name, err)
	}
	return reader, nil
}

// Put uploads data in a single request.
func (p *GCSProvider) Put(ctx context.Context, name string, data []byte, opts pkgstorage.UploadOptions) error {
	return p.write(ctx, name, bytes.NewReader(data), opts, 0)
}

// PutStream uploads r with a resumable upload.
func (p *GCSProvider) PutStream(ctx context.Context, name string, r io.Reader, opts pkgstorage.UploadOptions) error {
	return p.write(ctx, name, r, opts, streamChunkSize)
}

func (p *GCSProvider) write(ctx context.Context, name string, r io.Reader, opts pkgstorage.UploadOptions, chunkSize int) error {
	// Cancelling the writer's context is the only way to abandon an upload.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	attrs := writerAttrs{
		ContentEncoding: opts.ContentEncoding(),
		ChunkSize:       chunkSize,
	}
	if opts.ContentType != nil {
		attrs.ContentType = *opts.ContentType
	}
	if opts.CacheControl != nil {
		attrs.CacheControl = *opts.CacheControl
	}

	w := p.object(name).NewWriter(ctx, attrs)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return wrapError("put", name, err)
	}
	if err := w.Close(); err != nil {
		return wrapError("put", name, err)
	}
	return nil
}

// Delete removes the object.
func (p *GCSProvider) Delete(ctx context.Context, name string) error {
	return wrapError("delete", name, p.object(name).Delete(ctx))
}

// List returns every object whose name starts with prefix.
func (p *GCSProvider) List(ctx context.Context, prefix string) ([]pkgstorage.ObjectInfo, error) {
	it := p.client.Bucket(p.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []pkgstorage.ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapError("list", prefix, err)
		}
		objects = append(objects, pkgstorage.ObjectInfo{
			Name:         attrs.Name,
			Size:         attrs.Size,
			ETag:         attrs.Etag,
			ContentType:  attrs.ContentType,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

// Close releases the underlying client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
