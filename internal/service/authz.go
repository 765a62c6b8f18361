package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

// Authorizer is the delegated ownership/role check consulted before any state
// change or sensitive read. The actor is an opaque identity handed through
// from the authentication layer.
type Authorizer interface {
	CanWrite(ctx context.Context, eventID uuid.UUID, actor string) (bool, error)
	CanRead(ctx context.Context, eventID uuid.UUID, actor string) (bool, error)
}

// permissionAuthorizer answers authorization checks from event ownership plus
// the sharing grants: owners and editors write, any grant reads.
type permissionAuthorizer struct {
	store repository.VersionStore
	perms repository.PermissionRepository
}

// NewPermissionAuthorizer builds the Authorizer backing the core services.
func NewPermissionAuthorizer(store repository.VersionStore, perms repository.PermissionRepository) Authorizer {
	return &permissionAuthorizer{store: store, perms: perms}
}

func (a *permissionAuthorizer) CanWrite(ctx context.Context, eventID uuid.UUID, actor string) (bool, error) {
	event, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.OwnerID == actor {
		return true, nil
	}
	role, ok, err := a.perms.RoleFor(ctx, eventID, actor)
	if err != nil {
		return false, err
	}
	return ok && role.CanWrite(), nil
}

func (a *permissionAuthorizer) CanRead(ctx context.Context, eventID uuid.UUID, actor string) (bool, error) {
	event, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.OwnerID == actor {
		return true, nil
	}
	_, ok, err := a.perms.RoleFor(ctx, eventID, actor)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// authorizeWrite converts a failed check into the taxonomy error. Existence
// is checked first so a missing event surfaces as NotFound, never Forbidden.
func authorizeWrite(ctx context.Context, authz Authorizer, eventID uuid.UUID, actor string) error {
	ok, err := authz.CanWrite(ctx, eventID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden(eventID, actor)
	}
	return nil
}

func authorizeRead(ctx context.Context, authz Authorizer, eventID uuid.UUID, actor string) error {
	ok, err := authz.CanRead(ctx, eventID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden(eventID, actor)
	}
	return nil
}
