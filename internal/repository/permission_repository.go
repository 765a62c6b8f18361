package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neofi/eventapi/internal/domain"
)

type permissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository creates a PostgreSQL-backed permission repository.
func NewPermissionRepository(pool *pgxpool.Pool) PermissionRepository {
	return &permissionRepository{pool: pool}
}

func (r *permissionRepository) Grant(ctx context.Context, perm domain.EventPermission) error {
	if !perm.Role.Valid() {
		return domain.Validation("unknown role " + string(perm.Role))
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_permissions (event_id, user_id, role, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		perm.EventID, perm.UserID, string(perm.Role),
	)
	if err != nil {
		return mapStorageErr(fmt.Errorf("failed to grant permission: %w", err), perm.EventID)
	}
	return nil
}

func (r *permissionRepository) RoleFor(ctx context.Context, eventID uuid.UUID, userID string) (domain.Role, bool, error) {
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM event_permissions WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, mapStorageErr(fmt.Errorf("failed to look up role: %w", err), eventID)
	}
	return domain.Role(role), true, nil
}

func (r *permissionRepository) List(ctx context.Context, eventID uuid.UUID) ([]domain.EventPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, user_id, role, created_at
		FROM event_permissions
		WHERE event_id = $1
		ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, mapStorageErr(fmt.Errorf("failed to list permissions: %w", err), eventID)
	}
	defer rows.Close()

	perms := []domain.EventPermission{}
	for rows.Next() {
		var (
			perm domain.EventPermission
			role string
		)
		if err := rows.Scan(&perm.EventID, &perm.UserID, &role, &perm.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perm.Role = domain.Role(role)
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(fmt.Errorf("failed to read permissions: %w", err), eventID)
	}
	return perms, nil
}

func (r *permissionRepository) Revoke(ctx context.Context, eventID uuid.UUID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM event_permissions WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return mapStorageErr(fmt.Errorf("failed to revoke permission: %w", err), eventID)
	}
	return nil
}
