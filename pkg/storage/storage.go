// Package storage holds downloaded model artifacts (weights, label and
// preprocessor metadata) behind a small FileStore interface, so the hub
// cache can live on local disk or in a shared S3 bucket.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// FileStore is file-oriented storage addressed by forward-slash paths
// relative to the store root. Implementations are safe for concurrent use.
type FileStore interface {
	// Read opens path. A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates path. Data becomes visible to readers
	// only after a successful Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes path. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Object describes a file written by Put.
type Object struct {
	Path   string
	Size   int64
	SHA256 string
}

// Put copies r into path and returns its size and SHA-256 digest.
// The write is abandoned (Close is still called) if copying fails.
func Put(ctx context.Context, s FileStore, path string, r io.Reader) (Object, error) {
	w, err := s.Write(ctx, path)
	if err != nil {
		return Object{}, fmt.Errorf("storage: write %s: %w", path, err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		if a, ok := w.(interface{ Abort() }); ok {
			a.Abort()
		} else {
			w.Close()
		}
		return Object{}, fmt.Errorf("storage: copy %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: close %s: %w", path, err)
	}
	return Object{Path: path, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// ReadAll reads the whole file at path.
func ReadAll(ctx context.Context, s FileStore, path string) ([]byte, error) {
	r, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
