// Package repotest provides in-memory repository implementations honoring the
// same contracts as the PostgreSQL versions, including the conditional-append
// concurrency semantics. Intended for service and handler tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

type eventState struct {
	event    domain.Event
	versions []domain.EventVersion
}

// MemStore is an in-memory VersionStore. Appends are serialized by a mutex
// and still enforce the expected-version check so conflict paths are testable.
type MemStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*eventState

	// AppendBarrier, when set, runs inside the append critical section after
	// the expected-version check. Tests use it to force interleavings.
	AppendBarrier func()
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{events: map[uuid.UUID]*eventState{}}
}

var _ repository.VersionStore = (*MemStore)(nil)

func (s *MemStore) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, domain.EventVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, domain.EventVersion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event.CurrentVersion = 1
	event.Deleted = false
	version := domain.EventVersion{
		ID:            uuid.New(),
		EventID:       event.ID,
		VersionNumber: 1,
		ChangeType:    domain.ChangeTypeCreate,
		ChangedBy:     event.OwnerID,
		Snapshot:      event.Snapshot.Clone(),
		CreatedAt:     event.CreatedAt,
	}
	s.events[event.ID] = &eventState{
		event:    event,
		versions: []domain.EventVersion{version},
	}
	return event, version, nil
}

func (s *MemStore) Append(
	ctx context.Context,
	eventID uuid.UUID,
	expectedVersion int64,
	snapshot domain.EventSnapshot,
	deleted bool,
	changeType domain.ChangeType,
	changedBy string,
	sourceVersion *int64,
) (domain.EventVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.EventVersion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.events[eventID]
	if !ok {
		return domain.EventVersion{}, domain.NotFound(eventID, 0)
	}
	if state.event.CurrentVersion != expectedVersion {
		return domain.EventVersion{}, domain.ConcurrentModification(eventID)
	}
	if s.AppendBarrier != nil {
		s.AppendBarrier()
	}

	version := domain.EventVersion{
		ID:            uuid.New(),
		EventID:       eventID,
		VersionNumber: expectedVersion + 1,
		ChangeType:    changeType,
		ChangedBy:     changedBy,
		SourceVersion: sourceVersion,
		Snapshot:      snapshot.Clone(),
		CreatedAt:     time.Now().UTC(),
	}
	state.versions = append(state.versions, version)
	state.event.Snapshot = snapshot.Clone()
	state.event.CurrentVersion = version.VersionNumber
	state.event.Deleted = deleted
	state.event.UpdatedAt = version.CreatedAt
	return version, nil
}

func (s *MemStore) Get(ctx context.Context, eventID uuid.UUID, versionNumber int64) (domain.EventVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.EventVersion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.events[eventID]
	if !ok {
		return domain.EventVersion{}, domain.NotFound(eventID, versionNumber)
	}
	for _, version := range state.versions {
		if version.VersionNumber == versionNumber {
			return version, nil
		}
	}
	return domain.EventVersion{}, domain.NotFound(eventID, versionNumber)
}

func (s *MemStore) Latest(ctx context.Context, eventID uuid.UUID) (domain.EventVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.EventVersion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.events[eventID]
	if !ok || len(state.versions) == 0 {
		return domain.EventVersion{}, domain.NotFound(eventID, 0)
	}
	return state.versions[len(state.versions)-1], nil
}

func (s *MemStore) List(ctx context.Context, eventID uuid.UUID, opts repository.ListOptions) ([]domain.EventVersion, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.events[eventID]
	if !ok {
		return nil, "", domain.NotFound(eventID, 0)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	after, err := repository.DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, "", err
	}

	ordered := append([]domain.EventVersion(nil), state.versions...)
	sort.Slice(ordered, func(i, j int) bool {
		if opts.Descending {
			return ordered[i].VersionNumber > ordered[j].VersionNumber
		}
		return ordered[i].VersionNumber < ordered[j].VersionNumber
	})

	page := make([]domain.EventVersion, 0, pageSize)
	for _, version := range ordered {
		if after > 0 {
			if opts.Descending && version.VersionNumber >= after {
				continue
			}
			if !opts.Descending && version.VersionNumber <= after {
				continue
			}
		}
		page = append(page, version)
		if len(page) > pageSize {
			break
		}
	}

	nextCursor := ""
	if len(page) > pageSize {
		page = page[:pageSize]
		nextCursor = repository.EncodeCursor(page[len(page)-1].VersionNumber)
	}
	return page, nextCursor, nil
}

func (s *MemStore) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.NotFound(eventID, 0)
	}
	return state.event, nil
}

func (s *MemStore) ListEvents(ctx context.Context, ownerID string, filter repository.EventFilter) ([]domain.Event, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []domain.Event{}
	for _, state := range s.events {
		event := state.event
		if event.OwnerID != ownerID {
			continue
		}
		if filter.From != nil && event.Snapshot.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && event.Snapshot.EndTime.After(*filter.To) {
			continue
		}
		matched = append(matched, event)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Snapshot.StartTime.Before(matched[j].Snapshot.StartTime)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemStore) Purge(ctx context.Context, eventID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return domain.NotFound(eventID, 0)
	}
	delete(s.events, eventID)
	return nil
}

// VersionCount reports how many versions an event holds; test assertion helper.
func (s *MemStore) VersionCount(eventID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.events[eventID]
	if !ok {
		return 0
	}
	return len(state.versions)
}

// MemPermissions is an in-memory PermissionRepository.
type MemPermissions struct {
	mu     sync.Mutex
	grants map[uuid.UUID]map[string]domain.EventPermission
}

// NewMemPermissions creates an empty in-memory permission repository.
func NewMemPermissions() *MemPermissions {
	return &MemPermissions{grants: map[uuid.UUID]map[string]domain.EventPermission{}}
}

var _ repository.PermissionRepository = (*MemPermissions)(nil)

func (p *MemPermissions) Grant(ctx context.Context, perm domain.EventPermission) error {
	if !perm.Role.Valid() {
		return domain.Validation("unknown role " + string(perm.Role))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grants[perm.EventID] == nil {
		p.grants[perm.EventID] = map[string]domain.EventPermission{}
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	p.grants[perm.EventID][perm.UserID] = perm
	return nil
}

func (p *MemPermissions) RoleFor(ctx context.Context, eventID uuid.UUID, userID string) (domain.Role, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	perm, ok := p.grants[eventID][userID]
	if !ok {
		return "", false, nil
	}
	return perm.Role, true, nil
}

func (p *MemPermissions) List(ctx context.Context, eventID uuid.UUID) ([]domain.EventPermission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	perms := make([]domain.EventPermission, 0, len(p.grants[eventID]))
	for _, perm := range p.grants[eventID] {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].UserID < perms[j].UserID })
	return perms, nil
}

func (p *MemPermissions) Revoke(ctx context.Context, eventID uuid.UUID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.grants[eventID], userID)
	return nil
}
