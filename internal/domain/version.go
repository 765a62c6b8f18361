package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventVersion captures an immutable point-in-time snapshot of an event.
// Once written a version is never updated or deleted; version numbers form a
// contiguous 1..N sequence per event.
type EventVersion struct {
	ID            uuid.UUID     `json:"id"`
	EventID       uuid.UUID     `json:"event_id"`
	VersionNumber int64         `json:"version_number"`
	ChangeType    ChangeType    `json:"change_type"`
	ChangedBy     string        `json:"changed_by"`
	SourceVersion *int64        `json:"source_version,omitempty"`
	Snapshot      EventSnapshot `json:"snapshot"`
	CreatedAt     time.Time     `json:"created_at"`
}
