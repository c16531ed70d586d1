package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	pkgstorage "github.com/sgl-project/registry/pkg/storage"
)

// wrapError converts a client error into the storage error taxonomy.
func wrapError(op, name string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs %s %s: %w", op, name, pkgstorage.ErrNotFound)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound && op != "list" && op != "put" {
			return fmt.Errorf("gcs %s %s: %w", op, name, pkgstorage.ErrNotFound)
		}
		return pkgstorage.StatusErrorFrom(pkgstorage.ProviderGCS, op, name, apiErr.Code, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &pkgstorage.BackendError{Provider: pkgstorage.ProviderGCS, Op: op, Path: name, Err: err}
}
