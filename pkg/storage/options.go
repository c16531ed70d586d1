package storage

// UploadOption configures upload operations
type UploadOption func(*UploadOptions)

// UploadOptions describes how an uploaded object is served. It is a value type:
// every retry attempt gets its own copy.
type UploadOptions struct {
	// ContentType of the object; the backend default applies when nil.
	ContentType *string
	// CacheControl header of the object; unset when nil.
	CacheControl *string
	// GzipEncoded marks a payload that is already gzip compressed, so it is
	// stored with Content-Encoding: gzip.
	GzipEncoded bool
}

// ContentEncoding returns the Content-Encoding header value for the object.
func (o UploadOptions) ContentEncoding() string {
	if o.GzipEncoded {
		return "gzip"
	}
	return ""
}

// WithContentType sets the content type for upload
func WithContentType(contentType string) UploadOption {
	return func(o *UploadOptions) {
		o.ContentType = &contentType
	}
}

// WithCacheControl sets the Cache-Control header for upload
func WithCacheControl(cacheControl string) UploadOption {
	return func(o *UploadOptions) {
		o.CacheControl = &cacheControl
	}
}

// WithGzipEncoding marks the payload as gzip pre-encoded
func WithGzipEncoding(gzipped bool) UploadOption {
	return func(o *UploadOptions) {
		o.GzipEncoded = gzipped
	}
}

// BuildUploadOptions applies upload options and returns the configuration
func BuildUploadOptions(opts ...UploadOption) UploadOptions {
	var options UploadOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
