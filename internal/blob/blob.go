// Package blob stores the binary image bytes behind the metadata pipeline.
// The scheduler never looks in here; only the upload and download paths do.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that no object with the requested name exists on the
// backend.
var ErrNotFound = errors.New("object not found")

// Storage abstracts where uploaded photo bytes live. Two backends exist: the
// local uploads directory (default) and an S3-compatible bucket.
type Storage interface {
	// Save streams size bytes from r into the backend under name.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns a seekable reader for the stored object. The caller closes
	// it; http.ServeContent needs the Seek for range requests.
	Open(ctx context.Context, name string) (io.ReadSeekCloser, error)
	// Remove deletes the stored object. Removing a missing object is not an
	// error.
	Remove(ctx context.Context, name string) error
}
