// Package blob is the durable key -> bytes layer every record lives in.
//
// blob.go -- Store contract shared by all backends.
// Keys are slash-separated paths namespaced by record type ("users/<id>.json").
// No transactions: writes to different keys are independent, and list results
// may lag behind recent puts on eventually consistent backends (S3).
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
// Callers use errors.Is to tell a missing record from a backend failure.
var ErrNotFound = errors.New("blob not found")

// Object is one entry returned by List.
// URL is the public address when the backend has one, otherwise the key itself.
type Object struct {
	Key string
	URL string
}

// Store is the narrow key-value contract the rest of the service depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put upserts data under key and returns the object's URL.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every object whose key starts with prefix. No ordering guarantee.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report connectivity for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s if it implements Pinger; backends without a remote dependency are always healthy.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
