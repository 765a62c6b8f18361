package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/neofi/eventapi/internal/domain"
)

// ListOptions drives cursor pagination over an event's versions. The cursor
// is opaque to callers; an empty cursor starts from the beginning of the
// requested direction.
type ListOptions struct {
	Cursor     string
	PageSize   int
	Descending bool
}

// EventFilter narrows event listings for an owner.
type EventFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// VersionStore is the only component permitted to mutate the events and
// event_versions tables. All other components reach versions exclusively
// through its read contract.
type VersionStore interface {
	// CreateEvent writes the event row and its create version (number 1) as
	// a single atomic unit.
	CreateEvent(ctx context.Context, event domain.Event) (domain.Event, domain.EventVersion, error)

	// Append writes version expectedVersion+1 and advances the event's
	// current_version pointer in one conditional transaction. It fails with
	// ConcurrentModification when another writer advanced the pointer since
	// the caller read expectedVersion.
	Append(ctx context.Context, eventID uuid.UUID, expectedVersion int64, snapshot domain.EventSnapshot, deleted bool, changeType domain.ChangeType, changedBy string, sourceVersion *int64) (domain.EventVersion, error)

	Get(ctx context.Context, eventID uuid.UUID, versionNumber int64) (domain.EventVersion, error)
	List(ctx context.Context, eventID uuid.UUID, opts ListOptions) ([]domain.EventVersion, string, error)
	Latest(ctx context.Context, eventID uuid.UUID) (domain.EventVersion, error)

	GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
	ListEvents(ctx context.Context, ownerID string, filter EventFilter) ([]domain.Event, int, error)

	// Purge hard-deletes the event and cascades to every version. This is
	// the only path that removes version rows.
	Purge(ctx context.Context, eventID uuid.UUID) error
}

// PermissionRepository stores sharing grants backing the authorization check.
type PermissionRepository interface {
	Grant(ctx context.Context, perm domain.EventPermission) error
	RoleFor(ctx context.Context, eventID uuid.UUID, userID string) (domain.Role, bool, error)
	List(ctx context.Context, eventID uuid.UUID) ([]domain.EventPermission, error)
	Revoke(ctx context.Context, eventID uuid.UUID, userID string) error
}
