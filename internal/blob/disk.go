package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Disk keeps uploaded bytes as plain files in a single directory, matching
// the layout the HTTP layer exposes at /uploads.
type Disk struct {
	dir string
}

// NewDisk creates the uploads directory if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Save writes the stream to a file named after the object. filepath.Base
// strips any path components a hostile client could smuggle into the name.
func (d *Disk) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	path := filepath.Join(d.dir, filepath.Base(name))
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write object file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close object file: %w", err)
	}
	return nil
}

// Open returns the file; *os.File already satisfies io.ReadSeekCloser.
func (d *Disk) Open(_ context.Context, name string) (io.ReadSeekCloser, error) {
	f, err := os.Open(filepath.Join(d.dir, filepath.Base(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object file: %w", err)
	}
	return f, nil
}

// Remove deletes the file, ignoring objects that are already gone.
func (d *Disk) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(d.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object file: %w", err)
	}
	return nil
}
