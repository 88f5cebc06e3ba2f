// Package blobstore abstracts storage of binary artifacts: generated scene
// images and index snapshot backups.
//
// Implementations must be safe for concurrent use. Names are slash-separated
// keys ("images/clip-042.png"), not filesystem paths; each backend maps them
// to its own namespace.
package blobstore

import (
	"context"
	"io"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store reads and writes named binary artifacts.
type Store interface {
	// Put writes a blob atomically: readers never observe a partial write.
	Put(ctx context.Context, name string, data []byte) error

	// Open opens a blob for reading. The caller must close the returned
	// reader. Returns ErrNotFound if the blob does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ListPrefix joins a backend's root prefix with a caller's list prefix while
// preserving raw-prefix semantics: "snapshots/" must not match
// "snapshots2/...". Path joining would strip the trailing separator.
//
// Object-store backends use it to build their upstream list prefix; calling
// it with an empty prefix yields the root with a trailing separator, suitable
// for trimming result keys back to blob names.
func ListPrefix(root, prefix string) string {
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root + prefix
}

// ReadAll opens the named blob and reads it fully.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
