package storage

import (
	"context"
	"io"
	"time"
)

// Provider represents the storage provider type
type Provider string

const (
	ProviderGCS   Provider = "gcs"
	ProviderS3    Provider = "s3"
	ProviderLocal Provider = "local"
)

// Backend is a thin client for one bucket of one object-storage provider.
//
// Implementations are shared read-only by every task of a bucket and must be
// safe for concurrent use. Failures carrying an HTTP status are reported as
// *StatusError (see StatusErrorFrom); anything else as *BackendError. A
// missing object is reported as ErrNotFound by Get, Open and Delete.
type Backend interface {
	// Provider returns the storage provider type
	Provider() Provider
	// Bucket returns the provider-side bucket name
	Bucket() string

	Get(ctx context.Context, path string) ([]byte, error)
	// Open streams the object starting at byte offset.
	Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	Put(ctx context.Context, path string, data []byte, opts UploadOptions) error
	// PutStream uploads everything read from r until io.EOF.
	PutStream(ctx context.Context, path string, r io.Reader, opts UploadOptions) error

	Delete(ctx context.Context, path string) error
	// List returns every object whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo contains information about a storage object
type ObjectInfo struct {
	Name         string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
