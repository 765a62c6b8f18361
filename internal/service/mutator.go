package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

// Mutator applies create/update/delete operations to events. Every mutation
// appends exactly one version and advances the current-version pointer
// through the store's conditional append; conflicts are retried a bounded
// number of times before surfacing.
type Mutator struct {
	store  repository.VersionStore
	authz  Authorizer
	logger *zap.Logger

	maxAttempts int
	backoffBase time.Duration
	sleep       sleepFunc
}

// MutatorOption customizes retry behavior.
type MutatorOption func(*Mutator)

// WithMaxAttempts bounds the internal ConcurrentModification retry count.
func WithMaxAttempts(attempts int) MutatorOption {
	return func(m *Mutator) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// WithRetryBackoff sets the initial backoff; it doubles per attempt.
func WithRetryBackoff(base time.Duration) MutatorOption {
	return func(m *Mutator) {
		if base > 0 {
			m.backoffBase = base
		}
	}
}

// NewMutator creates the entity mutator.
func NewMutator(store repository.VersionStore, authz Authorizer, logger *zap.Logger, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		store:       store,
		authz:       authz,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       sleepWithContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates the snapshot and writes the event row together with
// version 1 as one atomic unit.
func (m *Mutator) Create(ctx context.Context, fields domain.EventSnapshot, actor string) (domain.Event, error) {
	if err := fields.Validate(); err != nil {
		return domain.Event{}, err
	}
	event, version, err := m.store.CreateEvent(ctx, domain.NewEvent(actor, fields))
	if err != nil {
		return domain.Event{}, err
	}
	m.logger.Info("event created",
		zap.String("event_id", event.ID.String()),
		zap.Int64("version", version.VersionNumber),
		zap.String("actor", actor),
	)
	return event, nil
}

// BatchResult reports the outcome of one item in a batch create.
type BatchResult struct {
	Event domain.Event
	Err   error
}

// CreateBatch creates each snapshot independently; a failing item does not
// abort the rest. Results are positional.
func (m *Mutator) CreateBatch(ctx context.Context, items []domain.EventSnapshot, actor string) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, fields := range items {
		event, err := m.Create(ctx, fields, actor)
		results[i] = BatchResult{Event: event, Err: err}
	}
	return results
}

// Update merges the patch onto the current snapshot and appends an update
// version. Identical patches still produce distinct versions; history records
// every attempt.
func (m *Mutator) Update(ctx context.Context, eventID uuid.UUID, patch domain.EventPatch, actor string) (domain.EventVersion, error) {
	if patch.IsEmpty() {
		return domain.EventVersion{}, domain.Validation("update patch sets no fields")
	}
	if err := authorizeWrite(ctx, m.authz, eventID, actor); err != nil {
		return domain.EventVersion{}, err
	}

	version, err := retryAppend(ctx, m.maxAttempts, m.backoffBase, m.sleep, func() (domain.EventVersion, error) {
		event, err := m.store.GetEvent(ctx, eventID)
		if err != nil {
			return domain.EventVersion{}, err
		}
		if event.Deleted {
			return domain.EventVersion{}, domain.AlreadyDeleted(eventID)
		}
		next := patch.Apply(event.Snapshot)
		if err := next.Validate(); err != nil {
			return domain.EventVersion{}, err
		}
		return m.store.Append(ctx, eventID, event.CurrentVersion, next, false, domain.ChangeTypeUpdate, actor, nil)
	})
	if err != nil {
		return domain.EventVersion{}, err
	}

	m.logger.Info("event updated",
		zap.String("event_id", eventID.String()),
		zap.Int64("version", version.VersionNumber),
		zap.String("actor", actor),
	)
	return version, nil
}

// Delete appends a delete version marking the event logically deleted. The
// snapshot is carried forward unchanged so history stays reconstructable.
func (m *Mutator) Delete(ctx context.Context, eventID uuid.UUID, actor string) (domain.EventVersion, error) {
	if err := authorizeWrite(ctx, m.authz, eventID, actor); err != nil {
		return domain.EventVersion{}, err
	}

	version, err := retryAppend(ctx, m.maxAttempts, m.backoffBase, m.sleep, func() (domain.EventVersion, error) {
		event, err := m.store.GetEvent(ctx, eventID)
		if err != nil {
			return domain.EventVersion{}, err
		}
		if event.Deleted {
			return domain.EventVersion{}, domain.AlreadyDeleted(eventID)
		}
		return m.store.Append(ctx, eventID, event.CurrentVersion, event.Snapshot, true, domain.ChangeTypeDelete, actor, nil)
	})
	if err != nil {
		return domain.EventVersion{}, err
	}

	m.logger.Info("event deleted",
		zap.String("event_id", eventID.String()),
		zap.Int64("version", version.VersionNumber),
		zap.String("actor", actor),
	)
	return version, nil
}
