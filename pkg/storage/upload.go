package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// DefaultStreamChunkSize is the read size used when forwarding a stream body.
const DefaultStreamChunkSize = 256 * 1024

// errUploaderDone closes the upload pipe once the backend stopped reading.
var errUploaderDone = errors.New("storage: uploader stopped reading")

// UploadBody is the payload of an upload: either bytes, which may be sent any
// number of times, or a stream, which may be read exactly once.
type UploadBody struct {
	data   []byte
	stream io.Reader
}

// BytesBody wraps data as an upload body. The caller must not modify data afterwards.
func BytesBody(data []byte) UploadBody {
	if data == nil {
		data = []byte{}
	}
	return UploadBody{data: data}
}

// StreamBody wraps a one-shot reader as an upload body. The reader is consumed
// by the first attempt; if that attempt fails with a retryable error the bytes
// read are kept in memory and replayed.
func StreamBody(r io.Reader) UploadBody {
	return UploadBody{stream: r}
}

// IsStream reports whether the body is a one-shot stream.
func (b UploadBody) IsStream() bool {
	return b.stream != nil
}

// Bytes returns the payload of a bytes body, or nil for a stream body.
func (b UploadBody) Bytes() []byte {
	return b.data
}

// UploadTask uploads one object.
type UploadTask struct {
	backend   Backend
	path      string
	body      UploadBody
	opts      UploadOptions
	chunkSize int
	metrics   *Metrics
}

// NewUploadTask creates an upload task for path with the given body and options.
func NewUploadTask(backend Backend, path string, body UploadBody, opts UploadOptions) *UploadTask {
	return &UploadTask{
		backend:   backend,
		path:      path,
		body:      body,
		opts:      opts,
		chunkSize: DefaultStreamChunkSize,
	}
}

// withChunkSize sets the read size used for stream bodies.
func (t *UploadTask) withChunkSize(n int) *UploadTask {
	if n > 0 {
		t.chunkSize = n
	}
	return t
}

func (t *UploadTask) withMetrics(m *Metrics) *UploadTask {
	t.metrics = m
	return t
}

// Op implements Task.
func (t *UploadTask) Op() string { return "upload" }

// Path implements Task.
func (t *UploadTask) Path() string { return t.path }

// Body returns the payload the task will send.
func (t *UploadTask) Body() UploadBody { return t.body }

// Options returns the upload options of the task.
func (t *UploadTask) Options() UploadOptions { return t.opts }

// Run implements Task.
func (t *UploadTask) Run(ctx context.Context) Outcome[struct{}] {
	if t.body.IsStream() {
		return t.runStream(ctx)
	}

	err := attemptError(ctx, t.backend, t.Op(), t.path, t.backend.Put(ctx, t.path, t.body.data, t.opts))
	switch {
	case err == nil:
		return Ok(struct{}{})
	case IsRetryable(err):
		return Backoff[struct{}](t.retry(t.body), err)
	default:
		return Fail[struct{}](err)
	}
}

// runStream forwards the stream to the backend while keeping a copy of every
// chunk. Both halves run to completion before the outcome is decided, so the
// copy always holds the full source when a retry is needed.
func (t *UploadTask) runStream(ctx context.Context) Outcome[struct{}] {
	src := t.body.stream
	pr, pw := io.Pipe()

	var (
		buf       bytes.Buffer
		uploadErr error
		readErr   error
		g         errgroup.Group
	)

	g.Go(func() error {
		uploadErr = attemptError(ctx, t.backend, t.Op(), t.path, t.backend.PutStream(ctx, t.path, pr, t.opts))
		if uploadErr != nil {
			_ = pr.CloseWithError(uploadErr)
		} else {
			_ = pr.CloseWithError(errUploaderDone)
		}
		return nil
	})

	g.Go(func() error {
		chunk := make([]byte, t.chunkSize)
		forwarding := true
		for {
			n, err := src.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
				// Write returns once the uploader consumed the chunk, so the
				// source is never read ahead of the slower side.
				if forwarding {
					if _, werr := pw.Write(chunk[:n]); werr != nil {
						forwarding = false
					}
				}
			}
			if errors.Is(err, io.EOF) {
				_ = pw.Close()
				return nil
			}
			if err != nil {
				readErr = &StreamError{Path: t.path, Err: err}
				_ = pw.CloseWithError(readErr)
				return nil
			}
		}
	})

	_ = g.Wait()

	switch {
	case readErr != nil:
		return Fail[struct{}](readErr)
	case uploadErr == nil:
		return Ok(struct{}{})
	case IsRetryable(uploadErr):
		t.metrics.observeBuffered(t.backend.Bucket(), buf.Len())
		return Backoff[struct{}](t.retry(BytesBody(buf.Bytes())), uploadErr)
	default:
		return Fail[struct{}](uploadErr)
	}
}

// retry builds the replacement task for the next attempt.
func (t *UploadTask) retry(body UploadBody) *UploadTask {
	return &UploadTask{
		backend:   t.backend,
		path:      t.path,
		body:      body,
		opts:      t.opts,
		chunkSize: t.chunkSize,
		metrics:   t.metrics,
	}
}
