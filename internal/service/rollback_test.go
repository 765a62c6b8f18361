package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/neofi/eventapi/internal/domain"
)

func TestRollbackRestoresSnapshot(t *testing.T) {
	f := newFixture(t)
	event := f.mustCreate(t, "alice")
	original, err := f.store.Get(context.Background(), event.ID, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	for _, title := range []string{"Second", "Third"} {
		if _, err := f.mutator.Update(context.Background(), event.ID, domain.EventPatch{Title: domain.Some(title)}, "alice"); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	version, err := f.rollback.Rollback(context.Background(), event.ID, 1, "alice")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if version.VersionNumber != 4 || version.ChangeType != domain.ChangeTypeRollback {
		t.Errorf("expected rollback version 4, got %d %s", version.VersionNumber, version.ChangeType)
	}
	if version.SourceVersion == nil || *version.SourceVersion != 1 {
		t.Errorf("source version must record the target, got %v", version.SourceVersion)
	}
	if !reflect.DeepEqual(version.Snapshot, original.Snapshot) {
		t.Errorf("rollback snapshot differs from target:\n%+v\n%+v", version.Snapshot, original.Snapshot)
	}

	// The target version itself is untouched.
	after, err := f.store.Get(context.Background(), event.ID, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(after, original) {
		t.Errorf("rollback mutated the target version")
	}
}

func TestRollbackToCurrentVersion(t *testing.T) {
	f := newFixture(t)
	event := f.mustCreate(t, "alice")

	version, err := f.rollback.Rollback(context.Background(), event.ID, 1, "alice")
	if err != nil {
		t.Fatalf("rollback to current failed: %v", err)
	}
	if version.VersionNumber != 2 {
		t.Errorf("rollback to current still appends, got version %d", version.VersionNumber)
	}
}

func TestRollbackMissingTarget(t *testing.T) {
	f := newFixture(t)
	event := f.mustCreate(t, "alice")

	if _, err := f.rollback.Rollback(context.Background(), event.ID, 7, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.rollback.Rollback(context.Background(), uuid.New(), 1, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing event, got %v", err)
	}
}

func TestRollbackRestoresDeletedEvent(t *testing.T) {
	f := newFixture(t)
	event := f.mustCreate(t, "alice")
	if _, err := f.mutator.Delete(context.Background(), event.ID, "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := f.rollback.Rollback(context.Background(), event.ID, 1, "alice"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	current, err := f.store.GetEvent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("get event failed: %v", err)
	}
	if current.Deleted {
		t.Errorf("rollback past a delete must restore the event")
	}

	// The restored event accepts updates again.
	if _, err := f.mutator.Update(context.Background(), event.ID, domain.EventPatch{Title: domain.Some("Back")}, "alice"); err != nil {
		t.Errorf("update after restore failed: %v", err)
	}
}

func TestRollbackRequiresWriteRole(t *testing.T) {
	f := newFixture(t)
	event := f.mustCreate(t, "alice")
	f.grant(t, event.ID, "carol", domain.RoleViewer)
	f.grant(t, event.ID, "bob", domain.RoleEditor)

	if _, err := f.rollback.Rollback(context.Background(), event.ID, 1, "carol"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("viewer rollback should be forbidden, got %v", err)
	}
	if _, err := f.rollback.Rollback(context.Background(), event.ID, 1, "bob"); err != nil {
		t.Errorf("editor rollback should succeed: %v", err)
	}
}
