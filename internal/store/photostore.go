// Package store contains the snapshot-file metadata persistence layer. The
// whole photo collection lives in a single JSON document that is re-read on
// every operation and rewritten in full on every mutation; there is no
// incremental format and no schema versioning. Go keeps each package in its
// own folder; files in the folder share a namespace.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dharsanguruparan/PhotoFlow/internal/model"
)

var (
	// ErrNotFound is exported so callers elsewhere can compare errors using
	// errors.Is; Go encourages sentinel errors for simple cases. Lookups and
	// updates against an unknown id return it instead of failing loudly —
	// callers, the scheduler included, treat it as "nothing to do".
	ErrNotFound = errors.New("photo not found")
)

const photosFile = "photos.json"

// PhotoStore persists photo metadata as a complete JSON snapshot. An RWMutex
// lets us differentiate read locks (multiple concurrent readers) from write
// locks (single writer); every mutation holds the write lock across its whole
// read-then-write cycle, so concurrent uploads and scheduler transitions can
// never clobber each other's fields.
type PhotoStore struct {
	mu   sync.RWMutex
	path string
}

// NewPhotoStore prepares the data directory and snapshot file. In Go it's
// conventional to return (*Type, error) so callers can handle initialization
// failures (e.g., inability to create the data directory).
func NewPhotoStore(dataDir string) (*PhotoStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &PhotoStore{path: filepath.Join(dataDir, photosFile)}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.writeAll([]*model.Photo{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	return s, nil
}

// List returns every photo in storage order (insertion order, oldest first).
// Callers needing recency must sort explicitly; see model.SortNewestFirst.
func (s *PhotoStore) List() ([]*model.Photo, error) {
	s.mu.RLock()
	// defer schedules code to run when the function returns, guaranteeing the
	// mutex unlock even if the function exits early.
	defer s.mu.RUnlock()
	return s.readAll()
}

// Get returns the photo with the given id or ErrNotFound.
func (s *PhotoStore) Get(id string) (*model.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	photos, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// CreateInput carries the caller-assigned identity of a new photo. Status is
// optional and defaults to uploaded.
type CreateInput struct {
	ID           string
	Filename     string
	OriginalName string
	Status       model.PhotoStatus
}

// Create appends a new record with an empty log and persists the snapshot.
// It fails only on storage I/O errors.
func (s *PhotoStore) Create(in CreateInput) (*model.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	photos, err := s.readAll()
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusUploaded
	}
	// time.Now returns local time; calling UTC standardizes timestamps for API.
	now := time.Now().UTC()
	photo := &model.Photo{
		ID:           in.ID,
		Filename:     in.Filename,
		OriginalName: in.OriginalName,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
		Log:          []model.LogEntry{},
	}
	photos = append(photos, photo)
	if err := s.writeAll(photos); err != nil {
		return nil, err
	}
	return photo, nil
}

// PhotoUpdate names the fields Update may merge. Pointer fields distinguish
// "leave untouched" (nil) from "set to this value".
type PhotoUpdate struct {
	Status   *model.PhotoStatus
	Filename *string
}

// Update merges the given fields into the record, bumps updatedAt, and
// persists. Unspecified fields are left untouched.
func (s *PhotoStore) Update(id string, upd PhotoUpdate) (*model.Photo, error) {
	return s.mutate(id, func(p *model.Photo) {
		if upd.Status != nil {
			p.Status = *upd.Status
		}
		if upd.Filename != nil {
			p.Filename = *upd.Filename
		}
	})
}

// AppendLog adds one entry to the photo's history and bumps updatedAt. The log
// is append-only; nothing ever removes or reorders entries.
func (s *PhotoStore) AppendLog(id string, entry model.LogEntry) (*model.Photo, error) {
	return s.mutate(id, func(p *model.Photo) {
		p.Log = append(p.Log, entry)
	})
}

// mutate runs the read-modify-write cycle for a single record under the write
// lock, so the whole cycle is one serialization point.
func (s *PhotoStore) mutate(id string, apply func(*model.Photo)) (*model.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	photos, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		if p.ID == id {
			apply(p)
			p.UpdatedAt = time.Now().UTC()
			if err := s.writeAll(photos); err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *PhotoStore) readAll() ([]*model.Photo, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*model.Photo{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(raw) == 0 {
		return []*model.Photo{}, nil
	}
	var photos []*model.Photo
	if err := json.Unmarshal(raw, &photos); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return photos, nil
}

func (s *PhotoStore) writeAll(photos []*model.Photo) error {
	payload, err := json.MarshalIndent(photos, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	// Write to a sibling temp file first and rename it into place; rename is
	// atomic on POSIX filesystems, so a concurrent reader never observes a
	// half-written snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
