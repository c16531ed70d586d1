package storage

import (
	"context"
	"errors"
	"io"
)

// outcomeOf turns the error of one backend call into an outcome: nil is Ok,
// a retryable error is Backoff to next, anything else is Fail.
func outcomeOf[T any](value T, err error, next Task[T]) Outcome[T] {
	switch {
	case err == nil:
		return Ok(value)
	case IsRetryable(err):
		return Backoff(next, err)
	default:
		return Fail[T](err)
	}
}

// attemptError reports a call cut off by the attempt deadline as a request
// timeout, unless the backend already classified it.
func attemptError(ctx context.Context, b Backend, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && IsDeadlineExceeded(err) {
		return TimeoutError(b.Provider(), op, path, err)
	}
	return err
}

// DownloadResult is the result of a download: Found is false when the object does not exist.
type DownloadResult struct {
	Data  []byte
	Found bool
}

// DownloadTask reads a whole object into memory.
type DownloadTask struct {
	backend Backend
	path    string
}

// NewDownloadTask creates a download task for path.
func NewDownloadTask(backend Backend, path string) *DownloadTask {
	return &DownloadTask{backend: backend, path: path}
}

func (t *DownloadTask) Op() string   { return "download" }
func (t *DownloadTask) Path() string { return t.path }

// Run implements Task.
func (t *DownloadTask) Run(ctx context.Context) Outcome[DownloadResult] {
	data, err := t.backend.Get(ctx, t.path)
	if IsNotFound(err) {
		return Ok(DownloadResult{})
	}
	err = attemptError(ctx, t.backend, t.Op(), t.path, err)
	return outcomeOf[DownloadResult](DownloadResult{Data: data, Found: true}, err, NewDownloadTask(t.backend, t.path))
}

// OpenResult is the result of opening an object stream: Reader is nil when the object does not exist.
type OpenResult struct {
	Reader io.ReadCloser
}

// Close closes the reader, if any.
func (r OpenResult) Close() {
	if r.Reader != nil {
		_ = r.Reader.Close()
	}
}

// OpenTask opens a streaming reader on an object from a byte offset.
type OpenTask struct {
	backend Backend
	path    string
	offset  int64
}

// NewOpenTask creates a task opening path at offset.
func NewOpenTask(backend Backend, path string, offset int64) *OpenTask {
	return &OpenTask{backend: backend, path: path, offset: offset}
}

func (t *OpenTask) Op() string   { return "open" }
func (t *OpenTask) Path() string { return t.path }

// Run implements Task. The attempt deadline bounds opening the stream but not
// reading it: the reader keeps a context of its own that ends when it is closed.
func (t *OpenTask) Run(ctx context.Context) Outcome[OpenResult] {
	next := NewOpenTask(t.backend, t.path, t.offset)
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	r, err := t.backend.Open(streamCtx, t.path, t.offset)
	if !stop() {
		// The attempt ended while opening.
		if r != nil {
			_ = r.Close()
		}
		cancel()
		return Backoff[OpenResult](next, TimeoutError(t.backend.Provider(), t.Op(), t.path, ctx.Err()))
	}
	if err != nil || r == nil {
		cancel()
		if IsNotFound(err) {
			return Ok(OpenResult{})
		}
		return outcomeOf[OpenResult](OpenResult{}, attemptError(ctx, t.backend, t.Op(), t.path, err), next)
	}
	return Ok(OpenResult{Reader: &streamReader{ReadCloser: r, cancel: cancel}})
}

// streamReader ends the stream's context when the reader is closed.
type streamReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *streamReader) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

// DeleteTask removes one object. Its result is true when the object was already absent.
type DeleteTask struct {
	backend Backend
	path    string
}

// NewDeleteTask creates a delete task for path.
func NewDeleteTask(backend Backend, path string) *DeleteTask {
	return &DeleteTask{backend: backend, path: path}
}

func (t *DeleteTask) Op() string   { return "delete" }
func (t *DeleteTask) Path() string { return t.path }

// Run implements Task.
func (t *DeleteTask) Run(ctx context.Context) Outcome[bool] {
	err := t.backend.Delete(ctx, t.path)
	if IsNotFound(err) {
		return Ok(true)
	}
	err = attemptError(ctx, t.backend, t.Op(), t.path, err)
	return outcomeOf[bool](false, err, NewDeleteTask(t.backend, t.path))
}

// ListTask lists every object under a prefix.
type ListTask struct {
	backend Backend
	prefix  string
}

// NewListTask creates a list task for prefix.
func NewListTask(backend Backend, prefix string) *ListTask {
	return &ListTask{backend: backend, prefix: prefix}
}

func (t *ListTask) Op() string   { return "list" }
func (t *ListTask) Path() string { return t.prefix }

// Run implements Task.
func (t *ListTask) Run(ctx context.Context) Outcome[[]ObjectInfo] {
	objects, err := t.backend.List(ctx, t.prefix)
	err = attemptError(ctx, t.backend, t.Op(), t.prefix, err)
	return outcomeOf[[]ObjectInfo](objects, err, NewListTask(t.backend, t.prefix))
}
