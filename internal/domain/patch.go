package domain

import "time"

// Optional carries a field value together with whether the patch sets it.
// A set field holding a nil pointer clears a nullable column, which a bare
// pointer could not distinguish from "leave unchanged".
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some wraps a value into a set Optional.
func Some[T any](value T) Optional[T] {
	return Optional[T]{Set: true, Value: value}
}

// EventPatch is a typed partial update. Each field is independently present
// or absent; absent fields keep the current value.
type EventPatch struct {
	Title             Optional[string]
	Description       Optional[string]
	StartTime         Optional[time.Time]
	EndTime           Optional[time.Time]
	Location          Optional[*string]
	IsRecurring       Optional[bool]
	RecurrencePattern Optional[*RecurrencePattern]
	RecurrenceEndDate Optional[*time.Time]
	Metadata          Optional[map[string]any]
}

// IsEmpty reports whether the patch sets no fields at all.
func (p EventPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.StartTime.Set && !p.EndTime.Set &&
		!p.Location.Set && !p.IsRecurring.Set && !p.RecurrencePattern.Set &&
		!p.RecurrenceEndDate.Set && !p.Metadata.Set
}

// Apply merges the patch onto base and returns the resulting snapshot. The
// base is never mutated; an identical patch applied twice still yields two
// distinct versions upstream because history records every attempt.
func (p EventPatch) Apply(base EventSnapshot) EventSnapshot {
	next := base.Clone()
	if p.Title.Set {
		next.Title = p.Title.Value
	}
	if p.Description.Set {
		next.Description = p.Description.Value
	}
	if p.StartTime.Set {
		next.StartTime = p.StartTime.Value
	}
	if p.EndTime.Set {
		next.EndTime = p.EndTime.Value
	}
	if p.Location.Set {
		if p.Location.Value == nil {
			next.Location = nil
		} else {
			location := *p.Location.Value
			next.Location = &location
		}
	}
	if p.IsRecurring.Set {
		next.IsRecurring = p.IsRecurring.Value
	}
	if p.RecurrencePattern.Set {
		if p.RecurrencePattern.Value == nil {
			next.RecurrencePattern = nil
		} else {
			pattern := *p.RecurrencePattern.Value
			next.RecurrencePattern = &pattern
		}
	}
	if p.RecurrenceEndDate.Set {
		if p.RecurrenceEndDate.Value == nil {
			next.RecurrenceEndDate = nil
		} else {
			endDate := *p.RecurrenceEndDate.Value
			next.RecurrenceEndDate = &endDate
		}
	}
	if p.Metadata.Set {
		next.Metadata = cloneMetadata(p.Metadata.Value)
	}
	return next
}
