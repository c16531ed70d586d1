package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"

	"github.com/sgl-project/registry/pkg/storage"
)

// statusCoder is implemented by the SDK's HTTP response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// wrapError converts an SDK error into the storage error taxonomy. Missing
// keys become storage.ErrNotFound; failures with an HTTP response are
// classified by status; deadline errors pass through unchanged.
func wrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("s3 %s %s: %w", op, key, storage.ErrNotFound)
		}
	}

	var resp statusCoder
	if errors.As(err, &resp) && resp.HTTPStatusCode() != 0 {
		// HEAD responses carry no error body, only the status.
		if resp.HTTPStatusCode() == http.StatusNotFound && objectOp(op) {
			return fmt.Errorf("s3 %s %s: %w", op, key, storage.ErrNotFound)
		}
		return storage.StatusErrorFrom(storage.ProviderS3, op, key, resp.HTTPStatusCode(), err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &storage.BackendError{Provider: storage.ProviderS3, Op: op, Path: key, Err: err}
}

func objectOp(op string) bool {
	return op == "get" || op == "open" || op == "delete"
}
