package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	pkgstorage "github.com/sgl-project/registry/pkg/storage"
)

type mockObject struct {
	data  []byte
	attrs writerAttrs
}

// mockGCSClient is an in-memory gcsClient. err, when set, is returned by
// every object operation.
type mockGCSClient struct {
	mu      sync.Mutex
	objects map[string]*mockObject
	err     error
	closed  bool
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{objects: map[string]*mockObject{}}
}

func (c *mockGCSClient) Bucket(name string) gcsBucketHandle {
	return &mockBucketHandle{client: c}
}

func (c *mockGCSClient) Close() error {
	c.closed = true
	return nil
}

func (c *mockGCSClient) get(name string) (*mockObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[name]
	return obj, ok
}

type mockBucketHandle struct {
	client *mockGCSClient
}

func (b *mockBucketHandle) Object(name string) gcsObjectHandle {
	return &mockObjectHandle{client: b.client, name: name}
}

func (b *mockBucketHandle) Objects(ctx context.Context, q *storage.Query) gcsObjectIterator {
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	it := &mockObjectIterator{err: b.client.err}
	for name, obj := range b.client.objects {
		if strings.HasPrefix(name, q.Prefix) {
			it.attrs = append(it.attrs, &storage.ObjectAttrs{
				Name:        name,
				Size:        int64(len(obj.data)),
				Etag:        "etag-" + name,
				ContentType: obj.attrs.ContentType,
				Updated:     time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
			})
		}
	}
	sort.Slice(it.attrs, func(i, j int) bool { return it.attrs[i].Name < it.attrs[j].Name })
	return it
}

type mockObjectIterator struct {
	attrs []*storage.ObjectAttrs
	err   error
}

func (it *mockObjectIterator) Next() (*storage.ObjectAttrs, error) {
	if it.err != nil {
		return nil, it.err
	}
	if len(it.attrs) == 0 {
		return nil, iterator.Done
	}
	next := it.attrs[0]
	it.attrs = it.attrs[1:]
	return next, nil
}

type mockObjectHandle struct {
	client *mockGCSClient
	name   string
}

func (o *mockObjectHandle) NewWriter(ctx context.Context, attrs writerAttrs) io.WriteCloser {
	return &mockWriter{handle: o, attrs: attrs}
}

func (o *mockObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if o.client.err != nil {
		return nil, o.client.err
	}
	obj, ok := o.client.get(o.name)
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(obj.data[offset:])), nil
}

func (o *mockObjectHandle) Delete(ctx context.Context) error {
	if o.client.err != nil {
		return o.client.err
	}
	o.client.mu.Lock()
	defer o.client.mu.Unlock()
	if _, ok := o.client.objects[o.name]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(o.client.objects, o.name)
	return nil
}

type mockWriter struct {
	handle *mockObjectHandle
	attrs  writerAttrs
	buf    bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *mockWriter) Close() error {
	c := w.handle.client
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[w.handle.name] = &mockObject{data: w.buf.Bytes(), attrs: w.attrs}
	return nil
}

func TestGCSProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newMockGCSClient()
	p := newGCSProvider(client, "npm", nil)

	assert.Equal(t, pkgstorage.ProviderGCS, p.Provider())
	assert.Equal(t, "npm", p.Bucket())

	opts := pkgstorage.BuildUploadOptions(
		pkgstorage.WithContentType("application/json"),
		pkgstorage.WithCacheControl("no-cache"),
		pkgstorage.WithGzipEncoding(true),
	)
	require.NoError(t, p.Put(ctx, "@scope/pkg/meta.json", []byte(`{"a":1}`), opts))

	obj, ok := client.get("@scope/pkg/meta.json")
	require.True(t, ok)
	assert.Equal(t, writerAttrs{
		ContentType:     "application/json",
		CacheControl:    "no-cache",
		ContentEncoding: "gzip",
	}, obj.attrs)

	data, err := p.Get(ctx, "@scope/pkg/meta.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	rc, err := p.Open(ctx, "@scope/pkg/meta.json", 1)
	require.NoError(t, err)
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `"a":1}`, string(rest))

	require.NoError(t, p.Close())
	assert.True(t, client.closed)
}

func TestGCSProvider_PutStreamUsesResumableUpload(t *testing.T) {
	ctx := context.Background()
	client := newMockGCSClient()
	p := newGCSProvider(client, "modules", nil)

	require.NoError(t, p.PutStream(ctx, "x/big.ts", strings.NewReader("streamed"), pkgstorage.UploadOptions{}))

	obj, ok := client.get("x/big.ts")
	require.True(t, ok)
	assert.Equal(t, "streamed", string(obj.data))
	assert.Equal(t, streamChunkSize, obj.attrs.ChunkSize)
	assert.Empty(t, obj.attrs.ContentEncoding)
}

func TestGCSProvider_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	p := newGCSProvider(newMockGCSClient(), "docs", nil)

	for _, name := range []string{"v1/a", "v1/b", "v2/a"} {
		require.NoError(t, p.Put(ctx, name, []byte(name), pkgstorage.UploadOptions{}))
	}

	objects, err := p.List(ctx, "v1/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "v1/a", objects[0].Name)
	assert.Equal(t, int64(4), objects[0].Size)
	assert.Equal(t, "etag-v1/a", objects[0].ETag)

	require.NoError(t, p.Delete(ctx, "v1/a"))
	assert.True(t, pkgstorage.IsNotFound(p.Delete(ctx, "v1/a")))

	_, err = p.Get(ctx, "v1/a")
	assert.True(t, pkgstorage.IsNotFound(err))
}

func TestGCSProvider_Errors(t *testing.T) {
	ctx := context.Background()
	client := newMockGCSClient()
	p := newGCSProvider(client, "modules", nil)

	client.err = &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "backend unavailable"}

	err := p.Put(ctx, "a", []byte("a"), pkgstorage.UploadOptions{})
	assert.True(t, pkgstorage.IsRetryable(err))

	_, err = p.List(ctx, "")
	var statusErr *pkgstorage.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, pkgstorage.KindServer, statusErr.Kind)
	assert.Equal(t, "list", statusErr.Op)
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name      string
		op        string
		err       error
		notFound  bool
		kind      pkgstorage.ErrorKind
		retryable bool
		backend   bool
	}{
		{name: "nil", op: "get", err: nil},
		{name: "object not exist", op: "get", err: storage.ErrObjectNotExist, notFound: true},
		{name: "api 404 on delete", op: "delete", err: &googleapi.Error{Code: 404}, notFound: true},
		{name: "api 404 on list", op: "list", err: &googleapi.Error{Code: 404}, kind: pkgstorage.KindClient},
		{name: "408", op: "put", err: &googleapi.Error{Code: 408}, kind: pkgstorage.KindRequestTimeout, retryable: true},
		{name: "429", op: "put", err: &googleapi.Error{Code: 429}, kind: pkgstorage.KindTooManyRequests, retryable: true},
		{name: "502", op: "get", err: &googleapi.Error{Code: 502}, kind: pkgstorage.KindServer, retryable: true},
		{name: "403", op: "get", err: &googleapi.Error{Code: 403}, kind: pkgstorage.KindClient},
		{name: "unexpected status", op: "get", err: &googleapi.Error{Code: 304}, backend: true},
		{name: "transport failure", op: "get", err: errors.New("connection reset"), backend: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError(tt.op, "obj", tt.err)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.notFound, pkgstorage.IsNotFound(err))
			assert.Equal(t, tt.retryable, pkgstorage.IsRetryable(err))

			var backendErr *pkgstorage.BackendError
			assert.Equal(t, tt.backend, errors.As(err, &backendErr))

			if tt.kind != 0 {
				var statusErr *pkgstorage.StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.kind, statusErr.Kind)
			}
		})
	}
}

func TestNewGCSProvider(t *testing.T) {
	ctx := context.Background()

	config := pkgstorage.DefaultConfig()
	config.Provider = pkgstorage.ProviderS3
	_, err := NewGCSProvider(ctx, config, "bucket", nil)
	assert.ErrorContains(t, err, "invalid provider")

	config.Provider = pkgstorage.ProviderGCS
	_, err = NewGCSProvider(ctx, config, "", nil)
	assert.ErrorContains(t, err, "bucket is required")

	config.GCS = pkgstorage.GCSConfig{
		Endpoint:              "http://localhost:4443/storage/v1/",
		WithoutAuthentication: true,
	}
	p, err := NewGCSProvider(ctx, config, "bucket", nil)
	require.NoError(t, err)
	assert.Equal(t, "bucket", p.Bucket())
	require.NoError(t, p.Close())
}
