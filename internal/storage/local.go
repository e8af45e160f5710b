package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore implements ObjectStore on a local directory tree, one
// subdirectory per bucket. Signed URLs are plain file:// URLs.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at dir.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "video-compiler-store")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStore{root: dir}, nil
}

// Root returns the storage root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// path resolves bucket/key below the root, rejecting escapes.
func (s *LocalStore) path(bucket, key string) (string, error) {
	if key == "" || bucket == "" {
		return "", ErrInvalidKey
	}
	p := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(filepath.Join(s.root, bucket), p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return p, nil
}

// SignedDownloadURL returns a file:// URL for an existing object. ttl is ignored.
func (s *LocalStore) SignedDownloadURL(ctx context.Context, bucket, key string, _ time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	p, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return "", fmt.Errorf("stat object: %w", err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve object path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Upload writes body to bucket/key and returns the file path. The content
// type is not persisted.
func (s *LocalStore) Upload(ctx context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	p, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return p, nil
}
