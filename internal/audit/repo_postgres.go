package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to the audit_events table.
//
// NOTE: assumed schema:
//
//	audit_events (id, tenant_id, type, actor_user_id, actor_email,
//	              ip_address, message, metadata, created_at)
//
// No UPDATE or DELETE is ever issued against this table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, tenant_id, type, actor_user_id, actor_email, ip_address, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		nullable(e.TenantID),
		e.Type,
		nullable(e.ActorUserID),
		nullable(e.ActorEmail),
		nullable(e.IPAddress),
		e.Message,
		nullable(e.Metadata),
		e.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
