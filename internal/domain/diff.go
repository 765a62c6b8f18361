package domain

import (
	"reflect"
	"time"
)

// DiffStatus classifies how a single field changed between two snapshots.
type DiffStatus string

const (
	DiffUnchanged DiffStatus = "unchanged"
	DiffAdded     DiffStatus = "added"
	DiffRemoved   DiffStatus = "removed"
	DiffModified  DiffStatus = "modified"
)

// FieldDiff reports one field comparison between two snapshots. Old carries
// the value from the first snapshot, New from the second; diff direction
// matters and is never normalized.
type FieldDiff struct {
	Field  string     `json:"field"`
	Old    any        `json:"old_value"`
	New    any        `json:"new_value"`
	Status DiffStatus `json:"status"`
}

// DiffOptions controls diff output. Unchanged fields are omitted unless
// IncludeUnchanged is set.
type DiffOptions struct {
	IncludeUnchanged bool
}

// snapshotFields is the canonical field ordering. Diff output always follows
// it so repeated diffs of identical inputs are byte-identical.
var snapshotFields = []string{
	"title",
	"description",
	"start_time",
	"end_time",
	"location",
	"is_recurring",
	"recurrence_pattern",
	"recurrence_end_date",
	"metadata",
}

// Diff compares two snapshots field by field. Fields absent in one snapshot
// and present in the other are reported as added/removed; nested metadata is
// compared by deep structural equality and reported as a single entry. Pure
// function of its inputs.
func Diff(a, b EventSnapshot, opts DiffOptions) []FieldDiff {
	diffs := make([]FieldDiff, 0, len(snapshotFields))
	for _, field := range snapshotFields {
		oldValue, oldPresent := fieldValue(a, field)
		newValue, newPresent := fieldValue(b, field)

		entry := FieldDiff{Field: field, Old: oldValue, New: newValue}
		switch {
		case !oldPresent && !newPresent:
			entry.Status = DiffUnchanged
		case !oldPresent:
			entry.Status = DiffAdded
		case !newPresent:
			entry.Status = DiffRemoved
		case equalValues(oldValue, newValue):
			entry.Status = DiffUnchanged
		default:
			entry.Status = DiffModified
		}

		if entry.Status == DiffUnchanged && !opts.IncludeUnchanged {
			continue
		}
		diffs = append(diffs, entry)
	}
	return diffs
}

// InitialDiff renders the summary for version 1, which has no predecessor:
// every populated field is reported as added.
func InitialDiff(s EventSnapshot) []FieldDiff {
	diffs := make([]FieldDiff, 0, len(snapshotFields))
	for _, field := range snapshotFields {
		value, present := fieldValue(s, field)
		if !present {
			continue
		}
		diffs = append(diffs, FieldDiff{Field: field, New: value, Status: DiffAdded})
	}
	return diffs
}

// fieldValue extracts one canonical field. Nullable fields are absent when
// nil; metadata is absent when empty; all other fields are always present.
func fieldValue(s EventSnapshot, field string) (any, bool) {
	switch field {
	case "title":
		return s.Title, true
	case "description":
		return s.Description, true
	case "start_time":
		return s.StartTime, true
	case "end_time":
		return s.EndTime, true
	case "location":
		if s.Location == nil {
			return nil, false
		}
		return *s.Location, true
	case "is_recurring":
		return s.IsRecurring, true
	case "recurrence_pattern":
		if s.RecurrencePattern == nil {
			return nil, false
		}
		return *s.RecurrencePattern, true
	case "recurrence_end_date":
		if s.RecurrenceEndDate == nil {
			return nil, false
		}
		return *s.RecurrenceEndDate, true
	case "metadata":
		if len(s.Metadata) == 0 {
			return nil, false
		}
		return s.Metadata, true
	}
	return nil, false
}

func equalValues(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}
