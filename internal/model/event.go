package model

// EventType tags the two kinds of notifications the bus carries.
type EventType string

const (
	EventItemCreated EventType = "item-created"
	EventItemUpdated EventType = "item-updated"
)

// Event is the payload pushed to every live subscriber when a photo is created
// or changes state. It deliberately carries nothing beyond the id and the new
// status; subscribers re-fetch the full record if they need more.
type Event struct {
	Type   EventType   `json:"type"`
	ID     string      `json:"id"`
	Status PhotoStatus `json:"status"`
}

// Created builds an item-created event for a freshly uploaded photo.
func Created(p *Photo) Event {
	return Event{Type: EventItemCreated, ID: p.ID, Status: p.Status}
}

// Updated builds an item-updated event after a status transition.
func Updated(p *Photo) Event {
	return Event{Type: EventItemUpdated, ID: p.ID, Status: p.Status}
}
