package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sgl-project/registry/pkg/storage"
)

// ProviderFake is the provider name reported by FakeBackend.
const ProviderFake storage.Provider = "fake"

// Operation names used by FakeBackend for failures, hooks and call counts.
// PutStream counts as "put_stream", not "put".
const (
	OpGet       = "get"
	OpOpen      = "open"
	OpPut       = "put"
	OpPutStream = "put_stream"
	OpDelete    = "delete"
	OpList      = "list"
)

// FakeBackend is an in-memory storage.Backend with failure injection.
type FakeBackend struct {
	// Hook, when set, runs at the start of every call; a non-nil error is
	// returned from the call as is.
	Hook func(ctx context.Context, op, path string) error

	// StreamBytesBeforeFailure is how much of the body PutStream reads before
	// returning an injected failure.
	StreamBytesBeforeFailure int

	bucket   string
	mu       sync.Mutex
	objects  map[string]fakeObject
	failures map[string][]error
	calls    map[string]int
}

type fakeObject struct {
	data []byte
	opts storage.UploadOptions
}

var _ storage.Backend = (*FakeBackend)(nil)

// NewFakeBackend creates an empty fake for bucket.
func NewFakeBackend(bucket string) *FakeBackend {
	return &FakeBackend{
		bucket:   bucket,
		objects:  map[string]fakeObject{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}
}

// StatusErr builds the error a real backend would report for an HTTP status.
func StatusErr(op string, code int) error {
	return storage.StatusErrorFrom(ProviderFake, op, "", code, fmt.Errorf("%d %s", code, http.StatusText(code)))
}

// FailNext makes the next len(errs) calls of op fail with errs, in order.
func (f *FakeBackend) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was called.
func (f *FakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Object returns the stored bytes of path.
func (f *FakeBackend) Object(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	return obj.data, ok
}

// ObjectOptions returns the upload options path was stored with.
func (f *FakeBackend) ObjectOptions(path string) storage.UploadOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path].opts
}

// SetObject stores data at path without going through Put.
func (f *FakeBackend) SetObject(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = fakeObject{data: bytes.Clone(data)}
}

// RemoveObject deletes path without going through Delete.
func (f *FakeBackend) RemoveObject(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
}

func (f *FakeBackend) begin(ctx context.Context, op, path string) error {
	f.mu.Lock()
	f.calls[op]++
	var injected error
	if queued := f.failures[op]; len(queued) > 0 {
		injected = queued[0]
		f.failures[op] = queued[1:]
	}
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, path); err != nil {
			return err
		}
	}
	return injected
}

func (f *FakeBackend) Provider() storage.Provider { return ProviderFake }

func (f *FakeBackend) Bucket() string { return f.bucket }

func (f *FakeBackend) Get(ctx context.Context, path string) ([]byte, error) {
	if err := f.begin(ctx, OpGet, path); err != nil {
		return nil, err
	}
	data, ok := f.Object(path)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (f *FakeBackend) Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if err := f.begin(ctx, OpOpen, path); err != nil {
		return nil, err
	}
	data, ok := f.Object(path)
	if !ok {
		return nil, storage.ErrNotFound
	}
	if offset > int64(len(data)) {
		return nil, StatusErr(OpOpen, http.StatusRequestedRangeNotSatisfiable)
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (f *FakeBackend) Put(ctx context.Context, path string, data []byte, opts storage.UploadOptions) error {
	if err := f.begin(ctx, OpPut, path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = fakeObject{data: bytes.Clone(data), opts: opts}
	return nil
}

func (f *FakeBackend) PutStream(ctx context.Context, path string, r io.Reader, opts storage.UploadOptions) error {
	if err := f.begin(ctx, OpPutStream, path); err != nil {
		if f.StreamBytesBeforeFailure > 0 {
			_, _ = io.CopyN(io.Discard, r, int64(f.StreamBytesBeforeFailure))
		}
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = fakeObject{data: data, opts: opts}
	return nil
}

func (f *FakeBackend) Delete(ctx context.Context, path string) error {
	if err := f.begin(ctx, OpDelete, path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[path]; !ok {
		return storage.ErrNotFound
	}
	delete(f.objects, path)
	return nil
}

func (f *FakeBackend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if err := f.begin(ctx, OpList, prefix); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var objects []storage.ObjectInfo
	for name, obj := range f.objects {
		if strings.HasPrefix(name, prefix) {
			objects = append(objects, storage.ObjectInfo{Name: name, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
