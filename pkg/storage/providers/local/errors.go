package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/sgl-project/registry/pkg/storage"
)

// wrapError converts a filesystem error into the storage error taxonomy.
func wrapError(op, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("local %s %s: %w", op, name, storage.ErrNotFound)
	case errors.Is(err, os.ErrPermission):
		return storage.StatusErrorFrom(storage.ProviderLocal, op, name, http.StatusForbidden, err)
	case errors.Is(err, syscall.ENOSPC):
		return storage.StatusErrorFrom(storage.ProviderLocal, op, name, http.StatusInsufficientStorage, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return &storage.BackendError{Provider: storage.ProviderLocal, Op: op, Path: name, Err: err}
	}
}
