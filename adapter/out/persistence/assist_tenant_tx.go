package persistence

import (
	"context"
	"database/sql"

	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const setTenantQuery = `SELECT set_config('app.tenant_id', $1, true)`

// withTenant runs fn in a transaction whose app.tenant_id is set for the
// row-level-security policies. The setting is local to the transaction, so
// a pooled connection never carries one tenant's scope into another call.
func withTenant(ctx context.Context, db *sqlx.DB, tenantID uuid.UUID, readOnly bool, fn func(tx *sqlx.Tx) error) error {
	if tenantID == uuid.Nil {
		return apperr.MissingField("tenant_id")
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return apperr.DatabaseError("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, setTenantQuery, tenantID.String()); err != nil {
		return apperr.DatabaseError("set tenant scope", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit", err)
	}
	return nil
}
