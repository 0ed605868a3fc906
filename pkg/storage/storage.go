// Package storage abstracts where synthesized audio artifacts live. The
// relay writes each response's audio under a generated name and serves it
// back over HTTP; the backend can be local disk or an S3-compatible object
// store without the serving code changing.
package storage

import (
	"context"
	"io"
)

// FileStore is a minimal file-oriented store.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Open opens the named file for reading. If the file does not exist,
	// an error wrapping os.ErrNotExist is returned.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Save writes the full content of r to the named file, replacing any
	// existing content. Parent directories are created as needed.
	Save(ctx context.Context, path string, r io.Reader) error

	// Delete removes the named file. Deleting a missing file is not an
	// error (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}
