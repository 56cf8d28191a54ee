// Package objectstore abstracts the external (encrypted source) and
// internal (decrypted target) blob stores behind two narrow interfaces,
// generalized from the teacher's internal/sinks local-file writer (a
// single destination abstracted behind Write/Close) into a full
// read/write/list/metadata object-store contract, and from
// rescale-int's CloudTransfer-shaped provider split (one interface per
// capability set) for the read-only vs read-write split below.
package objectstore

import (
	"context"
	"io"
	"time"
)

// StorageObject describes one object as returned by List or GetMetadata.
type StorageObject struct {
	Key           string
	ContentLength int64
	ETag          string
	LastModified  time.Time
	UserMetadata  map[string]string
}

// ReadOnlyStore is the capability set the dataset catalogue and the
// acquisition pipeline's source side depend on.
type ReadOnlyStore interface {
	// OpenRead opens a streaming reader for key. The caller must Close it.
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns the object's metadata, including user metadata.
	GetMetadata(ctx context.Context, key string) (*StorageObject, error)

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]StorageObject, error)
}

// Store is the read-write capability set the acquisition pipeline's
// target side and the ingestion pipeline's source side depend on.
type Store interface {
	ReadOnlyStore

	// OpenWrite opens a streaming writer for key with the given content
	// type. The caller must Close it to flush and finalize the object.
	OpenWrite(ctx context.Context, key, contentType string) (io.WriteCloser, error)

	// SetMetadata replaces the user metadata on an existing object.
	SetMetadata(ctx context.Context, key string, metadata map[string]string) error

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
