package main

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
)

// gzipBytes compresses data at the default level.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipStream compresses r as it is read. A read error of r is returned by
// the compressed reader.
func gzipStream(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		if _, err := io.Copy(zw, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(zw.Close())
	}()
	return pr
}

// contentDigest records the digest and size of the bytes read through it.
type contentDigest struct {
	digester digest.Digester
	size     int64
}

func newContentDigest() *contentDigest {
	return &contentDigest{digester: digest.Canonical.Digester()}
}

func (d *contentDigest) Write(p []byte) (int, error) {
	d.size += int64(len(p))
	return d.digester.Hash().Write(p)
}

// Reader returns r with everything read from it added to the digest.
func (d *contentDigest) Reader(r io.Reader) io.Reader {
	return io.TeeReader(r, d)
}

func (d *contentDigest) Digest() digest.Digest { return d.digester.Digest() }
