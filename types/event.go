package types

import "time"

// EventKind enumerates the change notifications broadcast by the broker.
type EventKind string

const (
	EventProjectCreated EventKind = "project.created"
	EventProjectUpdated EventKind = "project.updated"
	EventProjectDeleted EventKind = "project.deleted"
	EventMediaUploaded  EventKind = "media.uploaded"
	EventMediaDeleted   EventKind = "media.deleted"
)

// Event is a typed change notification about projects and their media.
type Event struct {
	Kind       EventKind  `json:"kind"`
	ProjectID  string     `json:"projectId,omitempty"`
	Project    *Project   `json:"project,omitempty"`
	Media      *MediaFile `json:"media,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}
