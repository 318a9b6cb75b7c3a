// Package storage persists test records and trace archives. Records
// live either on the local filesystem or in an S3 bucket; both backends
// speak the same Store interface.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound marks a missing object
var ErrNotFound = errors.New("object not found")

// Object describes one stored record
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is where test records and trace archives live
type Store interface {
	// Put writes the object at key, replacing any previous content
	Put(ctx context.Context, key string, r io.Reader) error
	// Get opens the object at key; the caller closes the reader
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List enumerates objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]Object, error)
	// Latest returns the most recently modified object under prefix
	Latest(ctx context.Context, prefix string) (*Object, error)
}
