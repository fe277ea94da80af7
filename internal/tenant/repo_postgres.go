package tenant

import (
	"context"
	"database/sql"
	"errors"

	"crm-platform/internal/rbac"
	"crm-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo reads memberships from the tenant_members table.
//
// NOTE: assumed schema:
//
//	tenants        (id, name, created_at)
//	tenant_members (user_id, tenant_id, role, is_active, created_at)
//	UNIQUE (user_id, tenant_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetMembership(ctx context.Context, userID, tenantID string) (Membership, error) {
	const q = `
SELECT tenant_id, role, is_active
FROM tenant_members
WHERE user_id = $1 AND tenant_id = $2
`
	var m Membership
	if err := r.db.QueryRowContext(ctx, q, userID, tenantID).Scan(
		&m.TenantID,
		&m.Role,
		&m.IsActive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

// CreateTenant provisions a tenant and its founding owner membership in a
// single transaction; a half-created tenant must never be observable.
func (r *PostgresRepo) CreateTenant(ctx context.Context, name, ownerUserID string) (string, error) {
	tenantID := uuid.NewString()
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, now())`,
			tenantID, name,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tenant_members (user_id, tenant_id, role, is_active, created_at)
VALUES ($1, $2, $3, true, now())`,
			ownerUserID, tenantID, rbac.RoleOwner,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return tenantID, nil
}
