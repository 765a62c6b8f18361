package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

// RollbackCoordinator restores an event to a prior version by appending a new
// rollback version carrying the target's snapshot. History only grows; the
// target version itself is never touched and its number is never reused.
type RollbackCoordinator struct {
	store  repository.VersionStore
	authz  Authorizer
	logger *zap.Logger

	maxAttempts int
	backoffBase time.Duration
	sleep       sleepFunc
}

// NewRollbackCoordinator creates the rollback coordinator.
func NewRollbackCoordinator(store repository.VersionStore, authz Authorizer, logger *zap.Logger) *RollbackCoordinator {
	return &RollbackCoordinator{
		store:       store,
		authz:       authz,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       sleepWithContext,
	}
}

// Rollback appends a rollback version whose snapshot equals the target
// version's. Rolling back to the current version is permitted and still
// records a version. Rolling back past a delete restores the event.
func (r *RollbackCoordinator) Rollback(ctx context.Context, eventID uuid.UUID, targetVersion int64, actor string) (domain.EventVersion, error) {
	if err := authorizeWrite(ctx, r.authz, eventID, actor); err != nil {
		return domain.EventVersion{}, err
	}

	target, err := r.store.Get(ctx, eventID, targetVersion)
	if err != nil {
		return domain.EventVersion{}, err
	}

	source := target.VersionNumber
	version, err := retryAppend(ctx, r.maxAttempts, r.backoffBase, r.sleep, func() (domain.EventVersion, error) {
		event, err := r.store.GetEvent(ctx, eventID)
		if err != nil {
			return domain.EventVersion{}, err
		}
		return r.store.Append(ctx, eventID, event.CurrentVersion, target.Snapshot.Clone(), false, domain.ChangeTypeRollback, actor, &source)
	})
	if err != nil {
		return domain.EventVersion{}, err
	}

	r.logger.Info("event rolled back",
		zap.String("event_id", eventID.String()),
		zap.Int64("target_version", targetVersion),
		zap.Int64("new_version", version.VersionNumber),
		zap.String("actor", actor),
	)
	return version, nil
}
