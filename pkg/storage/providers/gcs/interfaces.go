package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// gcsClient defines the interface for GCS client operations
type gcsClient interface {
	Bucket(name string) gcsBucketHandle
	Close() error
}

// gcsBucketHandle defines the interface for GCS bucket operations
type gcsBucketHandle interface {
	Object(name string) gcsObjectHandle
	Objects(ctx context.Context, q *storage.Query) gcsObjectIterator
}

// gcsObjectHandle defines the interface for GCS object operations
type gcsObjectHandle interface {
	NewWriter(ctx context.Context, attrs writerAttrs) io.WriteCloser
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

// gcsObjectIterator defines the interface for iterating over GCS objects
type gcsObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// writerAttrs are the object attributes set on a new writer.
type writerAttrs struct {
	ContentType     string
	CacheControl    string
	ContentEncoding string
	// ChunkSize 0 sends the object in a single request; otherwise a
	// resumable upload is used with chunks of this size.
	ChunkSize int
}

// Wrapper types to implement the interfaces

type clientWrapper struct {
	*storage.Client
}

func (c *clientWrapper) Bucket(name string) gcsBucketHandle {
	return &bucketWrapper{c.Client.Bucket(name)}
}

func (c *clientWrapper) Close() error {
	return c.Client.Close()
}

type bucketWrapper struct {
	*storage.BucketHandle
}

func (b *bucketWrapper) Object(name string) gcsObjectHandle {
	return &objectWrapper{b.BucketHandle.Object(name)}
}

func (b *bucketWrapper) Objects(ctx context.Context, q *storage.Query) gcsObjectIterator {
	return b.BucketHandle.Objects(ctx, q)
}

type objectWrapper struct {
	*storage.ObjectHandle
}

func (o *objectWrapper) NewWriter(ctx context.Context, attrs writerAttrs) io.WriteCloser {
	w := o.ObjectHandle.NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.CacheControl = attrs.CacheControl
	w.ContentEncoding = attrs.ContentEncoding
	w.ChunkSize = attrs.ChunkSize
	return w
}

func (o *objectWrapper) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return o.ObjectHandle.NewRangeReader(ctx, offset, length)
}

func (o *objectWrapper) Delete(ctx context.Context) error {
	return o.ObjectHandle.Delete(ctx)
}
