package domain

import (
	"errors"
	"testing"
	"time"
)

func validSnapshot() EventSnapshot {
	return EventSnapshot{
		Title:     "Planning",
		StartTime: time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 4, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotValidate(t *testing.T) {
	pattern := RecurrenceWeekly
	badPattern := RecurrencePattern("fortnightly")
	early := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		mutate  func(*EventSnapshot)
		wantErr bool
	}{
		{"valid", func(s *EventSnapshot) {}, false},
		{"empty title", func(s *EventSnapshot) { s.Title = "   " }, true},
		{"start equals end", func(s *EventSnapshot) { s.EndTime = s.StartTime }, true},
		{"start after end", func(s *EventSnapshot) { s.StartTime = s.EndTime.Add(time.Hour) }, true},
		{"unknown pattern", func(s *EventSnapshot) {
			s.IsRecurring = true
			s.RecurrencePattern = &badPattern
		}, true},
		{"pattern without recurring", func(s *EventSnapshot) { s.RecurrencePattern = &pattern }, true},
		{"recurrence end before start", func(s *EventSnapshot) {
			s.IsRecurring = true
			s.RecurrencePattern = &pattern
			s.RecurrenceEndDate = &early
		}, true},
		{"valid recurring", func(s *EventSnapshot) {
			s.IsRecurring = true
			s.RecurrencePattern = &pattern
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSnapshot()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSnapshotCloneIsolatesMutations(t *testing.T) {
	room := "Room 1"
	s := validSnapshot()
	s.Location = &room
	s.Metadata = map[string]any{"nested": map[string]any{"key": "value"}}

	clone := s.Clone()
	*clone.Location = "Room 2"
	clone.Metadata["nested"].(map[string]any)["key"] = "changed"

	if *s.Location != "Room 1" {
		t.Errorf("clone shares location pointer")
	}
	if s.Metadata["nested"].(map[string]any)["key"] != "value" {
		t.Errorf("clone shares nested metadata")
	}
}

func TestPatchApply(t *testing.T) {
	room := "Room 1"
	base := validSnapshot()
	base.Location = &room
	base.Metadata = map[string]any{"priority": "high"}

	patch := EventPatch{
		Title:    Some("Quarterly Planning"),
		Location: Some[*string](nil),
	}
	next := patch.Apply(base)

	if next.Title != "Quarterly Planning" {
		t.Errorf("title not applied: %q", next.Title)
	}
	if next.Location != nil {
		t.Errorf("set-to-nil location should clear the field, got %v", *next.Location)
	}
	if next.Description != base.Description || !next.StartTime.Equal(base.StartTime) {
		t.Errorf("unset fields must keep base values")
	}
	if base.Title != "Planning" || base.Location == nil {
		t.Errorf("apply mutated the base snapshot")
	}
	if next.Metadata["priority"] != "high" {
		t.Errorf("unset metadata must carry over")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(EventPatch{}).IsEmpty() {
		t.Errorf("zero patch should be empty")
	}
	if (EventPatch{Description: Some("")}).IsEmpty() {
		t.Errorf("patch setting a field to its zero value is not empty")
	}
}
