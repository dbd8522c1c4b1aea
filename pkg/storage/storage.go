// Package storage defines the object-store boundary used to read input
// files and write report artifacts. Implementations classify their failures
// with the error codes the pipeline keys its retry policy on: CodeNotFound,
// CodePermission, or CodeStoreUnavailable.
package storage

import "context"

// ObjectStore is the capability set the pipeline needs from an object store.
type ObjectStore interface {
	// Read returns the full content of an object.
	Read(ctx context.Context, container, key string) ([]byte, error)

	// Write stores an object, overwriting any existing one. Overwrites must
	// be idempotent: writing the same key twice is safe.
	Write(ctx context.Context, container, key string, data []byte, contentType string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, container, key string) (bool, error)

	// List returns the keys under prefix.
	List(ctx context.Context, container, prefix string) ([]string, error)

	// Name identifies the backend for logging.
	Name() string
}
