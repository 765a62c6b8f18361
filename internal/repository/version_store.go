package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neofi/eventapi/internal/domain"
)

const uniqueViolation = "23505"

const versionColumns = `id, event_id, version_number, change_type, changed_by, source_version,
	title, description, start_time, end_time, location, is_recurring,
	recurrence_pattern, recurrence_end_date, metadata, created_at`

const eventColumns = `id, owner_id, title, description, start_time, end_time, location,
	is_recurring, recurrence_pattern, recurrence_end_date, metadata,
	current_version, deleted, created_at, updated_at`

// versionStore implements VersionStore on PostgreSQL. The append path is a
// single conditional transaction: pointer update guarded by the expected
// current_version, then the version insert. No UPDATE or DELETE statement for
// event_versions exists here or anywhere else.
type versionStore struct {
	pool *pgxpool.Pool
}

// NewVersionStore creates a PostgreSQL-backed version store.
func NewVersionStore(pool *pgxpool.Pool) VersionStore {
	return &versionStore{pool: pool}
}

func (s *versionStore) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, domain.EventVersion, error) {
	metadataJSON, err := marshalMetadata(event.Snapshot.Metadata)
	if err != nil {
		return domain.Event{}, domain.EventVersion{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Event{}, domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to open transaction: %w", err), event.ID)
	}
	defer tx.Rollback(ctx)

	snap := event.Snapshot
	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, owner_id, title, description, start_time, end_time, location,
			is_recurring, recurrence_pattern, recurrence_end_date, metadata,
			current_version, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, FALSE, $12, $12)`,
		event.ID, event.OwnerID, snap.Title, snap.Description, snap.StartTime, snap.EndTime,
		snap.Location, snap.IsRecurring, patternText(snap.RecurrencePattern), snap.RecurrenceEndDate,
		metadataJSON, event.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to insert event: %w", err), event.ID)
	}

	version := domain.EventVersion{
		ID:            uuid.New(),
		EventID:       event.ID,
		VersionNumber: 1,
		ChangeType:    domain.ChangeTypeCreate,
		ChangedBy:     event.OwnerID,
		Snapshot:      snap.Clone(),
		CreatedAt:     event.CreatedAt,
	}
	if err := insertVersion(ctx, tx, version, metadataJSON); err != nil {
		return domain.Event{}, domain.EventVersion{}, mapStorageErr(err, event.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Event{}, domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to commit create: %w", err), event.ID)
	}

	event.CurrentVersion = 1
	event.Deleted = false
	return event, version, nil
}

func (s *versionStore) Append(
	ctx context.Context,
	eventID uuid.UUID,
	expectedVersion int64,
	snapshot domain.EventSnapshot,
	deleted bool,
	changeType domain.ChangeType,
	changedBy string,
	sourceVersion *int64,
) (domain.EventVersion, error) {
	metadataJSON, err := marshalMetadata(snapshot.Metadata)
	if err != nil {
		return domain.EventVersion{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to open transaction: %w", err), eventID)
	}
	defer tx.Rollback(ctx)

	nextVersion := expectedVersion + 1
	now := time.Now().UTC()

	tag, err := tx.Exec(ctx, `
		UPDATE events
		SET title = $1, description = $2, start_time = $3, end_time = $4, location = $5,
			is_recurring = $6, recurrence_pattern = $7, recurrence_end_date = $8, metadata = $9,
			current_version = $10, deleted = $11, updated_at = $12
		WHERE id = $13 AND current_version = $14`,
		snapshot.Title, snapshot.Description, snapshot.StartTime, snapshot.EndTime, snapshot.Location,
		snapshot.IsRecurring, patternText(snapshot.RecurrencePattern), snapshot.RecurrenceEndDate, metadataJSON,
		nextVersion, deleted, now, eventID, expectedVersion,
	)
	if err != nil {
		return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to advance version pointer: %w", err), eventID)
	}
	if tag.RowsAffected() == 0 {
		// Either the event is gone or another writer advanced the pointer.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to check event existence: %w", err), eventID)
		}
		if !exists {
			return domain.EventVersion{}, domain.NotFound(eventID, 0)
		}
		return domain.EventVersion{}, domain.ConcurrentModification(eventID)
	}

	version := domain.EventVersion{
		ID:            uuid.New(),
		EventID:       eventID,
		VersionNumber: nextVersion,
		ChangeType:    changeType,
		ChangedBy:     changedBy,
		SourceVersion: sourceVersion,
		Snapshot:      snapshot.Clone(),
		CreatedAt:     now,
	}
	if err := insertVersion(ctx, tx, version, metadataJSON); err != nil {
		return domain.EventVersion{}, mapStorageErr(err, eventID)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to commit append: %w", err), eventID)
	}

	return version, nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, v domain.EventVersion, metadataJSON []byte) error {
	snap := v.Snapshot
	_, err := tx.Exec(ctx, `
		INSERT INTO event_versions (id, event_id, version_number, change_type, changed_by, source_version,
			title, description, start_time, end_time, location, is_recurring,
			recurrence_pattern, recurrence_end_date, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.EventID, v.VersionNumber, string(v.ChangeType), v.ChangedBy, v.SourceVersion,
		snap.Title, snap.Description, snap.StartTime, snap.EndTime, snap.Location, snap.IsRecurring,
		patternText(snap.RecurrencePattern), snap.RecurrenceEndDate, metadataJSON, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

func (s *versionStore) Get(ctx context.Context, eventID uuid.UUID, versionNumber int64) (domain.EventVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM event_versions
		WHERE event_id = $1 AND version_number = $2`,
		eventID, versionNumber,
	)
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EventVersion{}, domain.NotFound(eventID, versionNumber)
		}
		return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to get version: %w", err), eventID)
	}
	return version, nil
}

func (s *versionStore) Latest(ctx context.Context, eventID uuid.UUID) (domain.EventVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+versionColumnsPrefixed("v")+`
		FROM event_versions v
		JOIN events e ON e.id = v.event_id AND e.current_version = v.version_number
		WHERE v.event_id = $1`,
		eventID,
	)
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EventVersion{}, domain.NotFound(eventID, 0)
		}
		return domain.EventVersion{}, mapStorageErr(fmt.Errorf("failed to get latest version: %w", err), eventID)
	}
	return version, nil
}

func (s *versionStore) List(ctx context.Context, eventID uuid.UUID, opts ListOptions) ([]domain.EventVersion, string, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	after, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + versionColumns + ` FROM event_versions WHERE event_id = $1`
	args := []any{eventID}
	if after > 0 {
		if opts.Descending {
			query += ` AND version_number < $2`
		} else {
			query += ` AND version_number > $2`
		}
		args = append(args, after)
	}
	if opts.Descending {
		query += ` ORDER BY version_number DESC`
	} else {
		query += ` ORDER BY version_number ASC`
	}
	query += fmt.Sprintf(` LIMIT %d`, pageSize+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", mapStorageErr(fmt.Errorf("failed to list versions: %w", err), eventID)
	}
	defer rows.Close()

	versions := make([]domain.EventVersion, 0, pageSize)
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapStorageErr(fmt.Errorf("failed to read versions: %w", err), eventID)
	}

	// Existence check so a missing event surfaces as NotFound, not an empty page.
	if len(versions) == 0 && after == 0 {
		if _, err := s.GetEvent(ctx, eventID); err != nil {
			return nil, "", err
		}
	}

	nextCursor := ""
	if len(versions) > pageSize {
		versions = versions[:pageSize]
		nextCursor = EncodeCursor(versions[len(versions)-1].VersionNumber)
	}
	return versions, nextCursor, nil
}

func (s *versionStore) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1`,
		eventID,
	)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.NotFound(eventID, 0)
		}
		return domain.Event{}, mapStorageErr(fmt.Errorf("failed to get event: %w", err), eventID)
	}
	return event, nil
}

func (s *versionStore) ListEvents(ctx context.Context, ownerID string, filter EventFilter) ([]domain.Event, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + `, COUNT(*) OVER() AS total_count FROM events WHERE owner_id = $1`
	args := []any{ownerID}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND start_time >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND end_time <= $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY start_time ASC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStorageErr(fmt.Errorf("failed to list events: %w", err), uuid.Nil)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, limit)
	total := 0
	for rows.Next() {
		event, count, err := scanEventWithCount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
		total = count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapStorageErr(fmt.Errorf("failed to read events: %w", err), uuid.Nil)
	}
	return events, total, nil
}

func (s *versionStore) Purge(ctx context.Context, eventID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return mapStorageErr(fmt.Errorf("failed to purge event: %w", err), eventID)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(eventID, 0)
	}
	return nil
}

// mapStorageErr translates storage-engine failures into the taxonomy. A
// unique violation on (event_id, version_number) is a concurrent append that
// slipped past the pointer guard; a deadline expiry is a StorageTimeout.
func mapStorageErr(err error, eventID uuid.UUID) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.StorageTimeout(eventID)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ConcurrentModification(eventID)
	}
	return err
}

// EncodeCursor builds the opaque keyset cursor over a version number, shared
// by every VersionStore implementation.
func EncodeCursor(versionNumber int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte("v:" + strconv.FormatInt(versionNumber, 10)))
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty cursor
// decodes to zero, meaning "from the beginning".
func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, domain.Validation("malformed page cursor")
	}
	value, ok := strings.CutPrefix(string(raw), "v:")
	if !ok {
		return 0, domain.Validation("malformed page cursor")
	}
	versionNumber, err := strconv.ParseInt(value, 10, 64)
	if err != nil || versionNumber <= 0 {
		return 0, domain.Validation("malformed page cursor")
	}
	return versionNumber, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return json.Marshal(metadata)
}

func patternText(pattern *domain.RecurrencePattern) *string {
	if pattern == nil {
		return nil
	}
	text := string(*pattern)
	return &text
}

func versionColumnsPrefixed(alias string) string {
	parts := strings.Split(versionColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (domain.EventVersion, error) {
	var (
		v            domain.EventVersion
		changeType   string
		pattern      *string
		metadataJSON []byte
	)
	err := row.Scan(
		&v.ID, &v.EventID, &v.VersionNumber, &changeType, &v.ChangedBy, &v.SourceVersion,
		&v.Snapshot.Title, &v.Snapshot.Description, &v.Snapshot.StartTime, &v.Snapshot.EndTime,
		&v.Snapshot.Location, &v.Snapshot.IsRecurring, &pattern, &v.Snapshot.RecurrenceEndDate,
		&metadataJSON, &v.CreatedAt,
	)
	if err != nil {
		return domain.EventVersion{}, err
	}
	v.ChangeType = domain.ChangeType(changeType)
	if pattern != nil {
		p := domain.RecurrencePattern(*pattern)
		v.Snapshot.RecurrencePattern = &p
	}
	if v.Snapshot.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return domain.EventVersion{}, err
	}
	return v, nil
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e            domain.Event
		pattern      *string
		metadataJSON []byte
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Snapshot.Title, &e.Snapshot.Description, &e.Snapshot.StartTime,
		&e.Snapshot.EndTime, &e.Snapshot.Location, &e.Snapshot.IsRecurring, &pattern,
		&e.Snapshot.RecurrenceEndDate, &metadataJSON, &e.CurrentVersion, &e.Deleted,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	if pattern != nil {
		p := domain.RecurrencePattern(*pattern)
		e.Snapshot.RecurrencePattern = &p
	}
	if e.Snapshot.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func scanEventWithCount(row rowScanner) (domain.Event, int, error) {
	var (
		e            domain.Event
		pattern      *string
		metadataJSON []byte
		total        int
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Snapshot.Title, &e.Snapshot.Description, &e.Snapshot.StartTime,
		&e.Snapshot.EndTime, &e.Snapshot.Location, &e.Snapshot.IsRecurring, &pattern,
		&e.Snapshot.RecurrenceEndDate, &metadataJSON, &e.CurrentVersion, &e.Deleted,
		&e.CreatedAt, &e.UpdatedAt, &total,
	)
	if err != nil {
		return domain.Event{}, 0, err
	}
	if pattern != nil {
		p := domain.RecurrencePattern(*pattern)
		e.Snapshot.RecurrencePattern = &p
	}
	if e.Snapshot.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return domain.Event{}, 0, err
	}
	return e, total, nil
}

func unmarshalMetadata(metadataJSON []byte) (map[string]any, error) {
	if len(metadataJSON) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}
