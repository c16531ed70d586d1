package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// LocalProvider is a storage.Backend keeping one bucket as a directory tree,
// on disk or in memory. Serving headers (content type, cache control,
// encoding) are not persisted.
type LocalProvider struct {
	fs     afero.Fs
	bucket string
	logger logging.Interface
}

// NewLocalProvider creates a backend for bucket from the local section of
// config. Objects live under <root>/<bucket>.
func NewLocalProvider(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (*LocalProvider, error) {
	if config.Provider != storage.ProviderLocal {
		return nil, fmt.Errorf("invalid provider: expected %s, got %s", storage.ProviderLocal, config.Provider)
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return nil, fmt.Errorf("invalid local bucket name %q", bucket)
	}

	var fs afero.Fs
	if config.Local.InMemory {
		fs = afero.NewMemMapFs()
	} else {
		if config.Local.Root == "" {
			return nil, fmt.Errorf("local storage root is required")
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), config.Local.Root)
	}

	return NewLocalProviderWithFs(fs, bucket, logger)
}

// NewLocalProviderWithFs creates a backend for bucket on top of fs.
func NewLocalProviderWithFs(fs afero.Fs, bucket string, logger logging.Interface) (*LocalProvider, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	base := "/" + bucket
	if err := fs.MkdirAll(base, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory %s: %w", bucket, err)
	}
	return &LocalProvider{
		fs:     afero.NewBasePathFs(fs, base),
		bucket: bucket,
		logger: logger,
	}, nil
}

// Provider returns the storage provider type
func (p *LocalProvider) Provider() storage.Provider {
	return storage.ProviderLocal
}

// Bucket returns the bucket directory name
func (p *LocalProvider) Bucket() string {
	return p.bucket
}

// objectPath maps an object name onto the bucket tree. Names that are empty
// or end in a separator do not name a file.
func objectPath(op, name string) (string, error) {
	clean := path.Clean("/" + name)
	if name == "" || clean == "/" || strings.HasSuffix(name, "/") {
		return "", storage.StatusErrorFrom(storage.ProviderLocal, op, name, 400, fmt.Errorf("invalid object name"))
	}
	return filepath.FromSlash(clean), nil
}

// Get reads the whole object.
func (p *LocalProvider) Get(ctx context.Context, name string) ([]byte, error) {
	file, err := objectPath("get", name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(p.fs, file)
	if err != nil {
		return nil, wrapError("get", name, err)
	}
	return data, nil
}

// Open returns a reader positioned at offset.
func (p *LocalProvider) Open(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	file, err := objectPath("open", name)
	if err != nil {
		return nil, err
	}
	f, err := p.fs.Open(file)
	if err != nil {
		return nil, wrapError("open", name, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		_ = f.Close()
		return nil, wrapError("open", name, os.ErrNotExist)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, wrapError("open", name, err)
		}
	}
	return f, nil
}

// Put writes data to the object.
func (p *LocalProvider) Put(ctx context.Context, name string, data []byte, opts storage.UploadOptions) error {
	return p.write(name, bytes.NewReader(data))
}

// PutStream writes everything read from r to the object.
func (p *LocalProvider) PutStream(ctx context.Context, name string, r io.Reader, opts storage.UploadOptions) error {
	return p.write(name, r)
}

// write fills a temporary file next to the object and renames it into place,
// so readers never observe a partial object.
func (p *LocalProvider) write(name string, r io.Reader) error {
	file, err := objectPath("put", name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(file)
	if err := p.fs.MkdirAll(dir, dirPerm); err != nil {
		return wrapError("put", name, err)
	}

	tmp, err := afero.TempFile(p.fs, dir, ".upload-*")
	if err != nil {
		return wrapError("put", name, err)
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = p.fs.Chmod(tmpName, filePerm)
	}
	if err == nil {
		err = p.fs.Rename(tmpName, file)
	}
	if err != nil {
		_ = p.fs.Remove(tmpName)
		return wrapError("put", name, err)
	}
	return nil
}

// Delete removes the object.
func (p *LocalProvider) Delete(ctx context.Context, name string) error {
	file, err := objectPath("delete", name)
	if err != nil {
		return err
	}
	if info, err := p.fs.Stat(file); err == nil && info.IsDir() {
		return wrapError("delete", name, os.ErrNotExist)
	}
	return wrapError("delete", name, p.fs.Remove(file))
}

// List returns every object whose name starts with prefix, in lexical order.
func (p *LocalProvider) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	err := afero.Walk(p.fs, string(filepath.Separator), func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".upload-") {
			return nil
		}
		name := strings.TrimPrefix(filepath.ToSlash(file), "/")
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		objects = append(objects, storage.ObjectInfo{
			Name:         name,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, wrapError("list", prefix, err)
	}
	return objects, nil
}
