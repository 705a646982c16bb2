// Package model contains simple struct definitions shared across packages.
package model

import (
	"sort"
	"time"
)

// PhotoStatus describes the processing lifecycle. In Go a type declared via
// "type X string" creates a new named type with string as the underlying
// representation, enabling better type safety than using plain strings.
type PhotoStatus string

const (
	// const blocks group related symbolic names; each constant is strongly typed.
	// Transitions are forward-only: a photo never revisits an earlier state.
	StatusUploaded   PhotoStatus = "uploaded"
	StatusProcessing PhotoStatus = "processing"
	StatusProcessed  PhotoStatus = "processed"
	StatusFailed     PhotoStatus = "failed"
)

// LogEntry is a single line in a photo's append-only history. Entries are never
// reordered or pruned; insertion order is significant.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Photo holds metadata about an uploaded photo. Struct tags such as
// `json:"id"` instruct the encoding/json package to use custom field names when
// marshalling/unmarshalling.
type Photo struct {
	ID string `json:"id"`
	// Filename is the name of the stored file on the blob backend; OriginalName
	// is whatever the uploading client called it. The scheduler carries both but
	// never interprets them.
	Filename     string      `json:"filename"`
	OriginalName string      `json:"originalName"`
	Status       PhotoStatus `json:"status"`
	// time.Time represents instants in UTC with nanosecond precision.
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Log       []LogEntry `json:"log"`
}

// SortNewestFirst orders photos by createdAt descending. Storage order is
// oldest first, so every listing surface applies this explicitly.
func SortNewestFirst(photos []*Photo) {
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})
}
