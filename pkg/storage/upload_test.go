package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/registry/pkg/storage"
	testingPkg "github.com/sgl-project/registry/pkg/testing"
)

func newTestBucket(t *testing.T, chunkSize int) (*storage.Bucket, *testingPkg.FakeBackend) {
	t.Helper()
	backend := testingPkg.NewFakeBackend("registry-modules")
	bucket := storage.NewBucket(storage.BucketModules, backend, storage.BucketOptions{
		Retry:           fastRetry(),
		StreamChunkSize: chunkSize,
	}, nil)
	t.Cleanup(bucket.Close)
	return bucket, backend
}

// countingReader counts the bytes handed out by the wrapped reader.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func TestUploadBody(t *testing.T) {
	empty := storage.BytesBody(nil)
	assert.False(t, empty.IsStream())
	assert.NotNil(t, empty.Bytes())
	assert.Empty(t, empty.Bytes())

	stream := storage.StreamBody(strings.NewReader("x"))
	assert.True(t, stream.IsStream())
	assert.Nil(t, stream.Bytes())

	task := storage.NewUploadTask(testingPkg.NewFakeBackend("b"), "a/b", stream, storage.UploadOptions{})
	assert.Equal(t, "upload", task.Op())
	assert.Equal(t, "a/b", task.Path())
	assert.True(t, task.Body().IsStream())
}

func TestUpload_BytesRetried(t *testing.T) {
	bucket, backend := newTestBucket(t, 0)
	backend.FailNext(testingPkg.OpPut,
		testingPkg.StatusErr(testingPkg.OpPut, 503),
		testingPkg.StatusErr(testingPkg.OpPut, 408),
	)

	opts := storage.BuildUploadOptions(storage.WithContentType("application/typescript"))
	require.NoError(t, bucket.Upload(context.Background(), "x/mod.ts", storage.BytesBody([]byte("export {}")), opts))

	assert.Equal(t, 3, backend.Calls(testingPkg.OpPut))
	data, ok := backend.Object("x/mod.ts")
	require.True(t, ok)
	assert.Equal(t, "export {}", string(data))
	assert.Equal(t, "application/typescript", *backend.ObjectOptions("x/mod.ts").ContentType)
}

func TestUpload_EmptyBody(t *testing.T) {
	bucket, backend := newTestBucket(t, 0)
	require.NoError(t, bucket.Upload(context.Background(), "empty", storage.BytesBody(nil), storage.UploadOptions{}))

	data, ok := backend.Object("empty")
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestUpload_StreamSucceedsWithoutBuffering(t *testing.T) {
	bucket, backend := newTestBucket(t, 1024)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	require.NoError(t, bucket.Upload(context.Background(), "big", storage.StreamBody(bytes.NewReader(payload)), storage.UploadOptions{}))

	data, _ := backend.Object("big")
	assert.Equal(t, payload, data)
	assert.Equal(t, 1, backend.Calls(testingPkg.OpPutStream))
	assert.Zero(t, backend.Calls(testingPkg.OpPut))
}

func TestUpload_StreamRetryReplaysFullSource(t *testing.T) {
	payload := bytes.Repeat([]byte("registry"), 32*1024)

	tests := []struct {
		name       string
		readBefore int
	}{
		{name: "uploader fails before reading", readBefore: 0},
		{name: "uploader fails after a partial read", readBefore: 3000},
		{name: "uploader fails after reading everything", readBefore: len(payload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, backend := newTestBucket(t, 1024)
			backend.StreamBytesBeforeFailure = tt.readBefore
			backend.FailNext(testingPkg.OpPutStream, testingPkg.StatusErr(testingPkg.OpPutStream, 503))
			backend.FailNext(testingPkg.OpPut, testingPkg.StatusErr(testingPkg.OpPut, 500))

			src := &countingReader{r: bytes.NewReader(payload)}
			opts := storage.BuildUploadOptions(storage.WithGzipEncoding(true))
			require.NoError(t, bucket.Upload(context.Background(), "pkg.tgz", storage.StreamBody(src), opts))

			assert.Equal(t, int64(len(payload)), src.n.Load(), "the source is read exactly once")
			assert.Equal(t, 1, backend.Calls(testingPkg.OpPutStream))
			assert.Equal(t, 2, backend.Calls(testingPkg.OpPut), "retries use the buffered bytes")

			data, _ := backend.Object("pkg.tgz")
			assert.Equal(t, payload, data)
			assert.True(t, backend.ObjectOptions("pkg.tgz").GzipEncoded)
		})
	}
}

func TestUpload_StreamReadErrorIsFatal(t *testing.T) {
	bucket, backend := newTestBucket(t, 2)
	readErr := errors.New("disk failure")
	src := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(readErr))

	err := bucket.Upload(context.Background(), "broken", storage.StreamBody(src), storage.UploadOptions{})

	var streamErr *storage.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, "broken", streamErr.Path)
	assert.Equal(t, 1, backend.Calls(testingPkg.OpPutStream))
	assert.Zero(t, backend.Calls(testingPkg.OpPut))
	_, stored := backend.Object("broken")
	assert.False(t, stored)
}

func TestUpload_StreamFatalUploadError(t *testing.T) {
	bucket, backend := newTestBucket(t, 0)
	backend.FailNext(testingPkg.OpPutStream, testingPkg.StatusErr(testingPkg.OpPutStream, 403))

	err := bucket.Upload(context.Background(), "denied", storage.StreamBody(strings.NewReader("data")), storage.UploadOptions{})

	var statusErr *storage.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, storage.KindClient, statusErr.Kind)
	assert.Zero(t, backend.Calls(testingPkg.OpPut))
}

func TestUpload_StreamBackpressure(t *testing.T) {
	const chunkSize = 1024
	bucket, backend := newTestBucket(t, chunkSize)

	release := make(chan struct{})
	backend.Hook = func(ctx context.Context, op, path string) error {
		if op == testingPkg.OpPutStream {
			<-release
		}
		return nil
	}

	src := &countingReader{r: bytes.NewReader(make([]byte, 64*chunkSize))}
	done := make(chan error, 1)
	go func() {
		done <- bucket.Upload(context.Background(), "slow", storage.StreamBody(src), storage.UploadOptions{})
	}()

	require.Eventually(t, func() bool { return src.n.Load() == chunkSize }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return src.n.Load() > chunkSize }, 50*time.Millisecond, 5*time.Millisecond,
		"the source must not be read ahead of a stalled uploader")

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("upload did not finish")
	}
	data, _ := backend.Object("slow")
	assert.Len(t, data, 64*chunkSize)
}
