package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChangeType identifies why a version was written.
type ChangeType string

const (
	ChangeTypeCreate   ChangeType = "create"
	ChangeTypeUpdate   ChangeType = "update"
	ChangeTypeDelete   ChangeType = "delete"
	ChangeTypeRollback ChangeType = "rollback"
)

// RecurrencePattern enumerates the supported recurrence schedules.
type RecurrencePattern string

const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
	RecurrenceYearly  RecurrencePattern = "yearly"
	RecurrenceCustom  RecurrencePattern = "custom"
)

// Valid reports whether the pattern is one of the known schedules.
func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly, RecurrenceCustom:
		return true
	}
	return false
}

// EventSnapshot holds the full user-visible field values of an event at one
// point in its history. Versions store snapshots whole rather than deltas so
// any historical state can be reconstructed without replay.
type EventSnapshot struct {
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	StartTime         time.Time          `json:"start_time"`
	EndTime           time.Time          `json:"end_time"`
	Location          *string            `json:"location,omitempty"`
	IsRecurring       bool               `json:"is_recurring"`
	RecurrencePattern *RecurrencePattern `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate *time.Time         `json:"recurrence_end_date,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can never mutate a stored snapshot
// through shared pointers or the metadata map.
func (s EventSnapshot) Clone() EventSnapshot {
	out := s
	if s.Location != nil {
		location := *s.Location
		out.Location = &location
	}
	if s.RecurrencePattern != nil {
		pattern := *s.RecurrencePattern
		out.RecurrencePattern = &pattern
	}
	if s.RecurrenceEndDate != nil {
		endDate := *s.RecurrenceEndDate
		out.RecurrenceEndDate = &endDate
	}
	out.Metadata = cloneMetadata(s.Metadata)
	return out
}

// Validate enforces the structural invariants every stored snapshot must
// satisfy, independent of any request-level validation.
func (s EventSnapshot) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return Validation("title must not be empty")
	}
	if !s.StartTime.Before(s.EndTime) {
		return Validation("start_time must be before end_time")
	}
	if s.RecurrencePattern != nil {
		if !s.RecurrencePattern.Valid() {
			return Validation("unknown recurrence_pattern " + string(*s.RecurrencePattern))
		}
		if !s.IsRecurring {
			return Validation("recurrence_pattern requires is_recurring")
		}
	}
	if s.RecurrenceEndDate != nil && s.RecurrenceEndDate.Before(s.StartTime) {
		return Validation("recurrence_end_date must not precede start_time")
	}
	return nil
}

// Event is the mutable logical record. Its field values always mirror the
// snapshot stored at CurrentVersion; the pointer is advanced atomically with
// each version insert.
type Event struct {
	ID             uuid.UUID     `json:"id"`
	OwnerID        string        `json:"owner_id"`
	Snapshot       EventSnapshot `json:"snapshot"`
	CurrentVersion int64         `json:"current_version"`
	Deleted        bool          `json:"deleted"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewEvent builds a fresh event for the given owner. CurrentVersion starts at
// 1; the store writes the matching create version in the same transaction.
func NewEvent(ownerID string, snapshot EventSnapshot) Event {
	now := time.Now().UTC()
	return Event{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Snapshot:       snapshot.Clone(),
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func cloneMetadata(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMetadata(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
