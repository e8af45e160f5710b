// Package storage provides object storage for compile inputs and outputs.
// It defines the ObjectStore interface (port) with implementations for S3
// and a local directory tree, plus a Fetcher that downloads signed URLs to
// local files.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Static errors for object storage.
var (
	// ErrObjectNotFound is returned when a requested object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping their bucket.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// ObjectStore defines the interface for the object store holding clips,
// music tracks and compiled videos.
type ObjectStore interface {
	// SignedDownloadURL returns a time-limited URL from which the object
	// can be fetched without further credentials.
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)

	// Upload stores body under bucket/key and returns the object location.
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) (string, error)
}
