package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// CanonicalQAAdapter implements out.CanonicalQARepository. An entry and its
// embedding are written in the same tenant-scoped transaction.
type CanonicalQAAdapter struct {
	db *sqlx.DB
}

var _ out.CanonicalQARepository = (*CanonicalQAAdapter)(nil)

func NewCanonicalQAAdapter(db *sqlx.DB) *CanonicalQAAdapter {
	return &CanonicalQAAdapter{db: db}
}

type canonicalRow struct {
	ID         uuid.UUID     `db:"id"`
	TenantID   uuid.UUID     `db:"tenant_id"`
	DocumentID uuid.NullUUID `db:"document_id"`
	VersionID  uuid.NullUUID `db:"version_id"`
	Question   string        `db:"question"`
	Answer     string        `db:"answer"`
	Status     string        `db:"status"`
	CreatedBy  uuid.NullUUID `db:"created_by"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
	Total      int           `db:"total"`
}

func (r *canonicalRow) toEntity() *domain.CanonicalQA {
	qa := &domain.CanonicalQA{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Question:  r.Question,
		Answer:    r.Answer,
		Status:    domain.CanonicalQAStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	qa.DocumentID = nullUUIDPtr(r.DocumentID)
	qa.VersionID = nullUUIDPtr(r.VersionID)
	qa.CreatedBy = nullUUIDPtr(r.CreatedBy)
	return qa
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

const canonicalColumns = `id, tenant_id, document_id, version_id, question, answer, status, created_by, created_at, updated_at`

// embeddingParam is nil when there is no new vector to store.
func embeddingParam(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func (a *CanonicalQAAdapter) Create(ctx context.Context, qa *domain.CanonicalQA, embedding []float32) error {
	if embedding == nil {
		return apperr.MissingField("embedding")
	}
	return withTenant(ctx, a.db, qa.TenantID, false, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO canonical_qa (id, tenant_id, document_id, version_id, question, answer, status, created_by, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
			RETURNING created_at, updated_at`,
			qa.ID, qa.TenantID, qa.DocumentID, qa.VersionID, qa.Question, qa.Answer, string(qa.Status), qa.CreatedBy,
			embeddingParam(embedding),
		).Scan(&qa.CreatedAt, &qa.UpdatedAt)
		if err != nil {
			return apperr.DatabaseError("create canonical qa", err)
		}
		return nil
	})
}

func (a *CanonicalQAAdapter) Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error) {
	var row canonicalRow
	err := withTenant(ctx, a.db, tenantID, true, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row,
			`SELECT `+canonicalColumns+`, 0 AS total FROM canonical_qa WHERE tenant_id = $1 AND id = $2`,
			tenantID, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("canonical qa")
		}
		if err != nil {
			return apperr.DatabaseError("get canonical qa", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (a *CanonicalQAAdapter) Update(ctx context.Context, qa *domain.CanonicalQA, embedding []float32) error {
	return withTenant(ctx, a.db, qa.TenantID, false, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE canonical_qa SET
				question = $3, answer = $4, document_id = $5, version_id = $6,
				status = $7, embedding = COALESCE($8::vector, embedding), updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
			RETURNING updated_at`,
			qa.TenantID, qa.ID, qa.Question, qa.Answer, qa.DocumentID, qa.VersionID, string(qa.Status),
			embeddingParam(embedding),
		).Scan(&qa.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("canonical qa")
		}
		if err != nil {
			return apperr.DatabaseError("update canonical qa", err)
		}
		return nil
	})
}

func (a *CanonicalQAAdapter) SetStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.CanonicalQAStatus) error {
	return withTenant(ctx, a.db, tenantID, false, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE canonical_qa SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
			tenantID, id, string(status))
		if err != nil {
			return apperr.DatabaseError("set canonical qa status", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("canonical qa")
		}
		return nil
	})
}

func (a *CanonicalQAAdapter) List(ctx context.Context, filter *domain.CanonicalQAFilter) ([]*domain.CanonicalQA, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	var rows []canonicalRow
	err := withTenant(ctx, a.db, filter.TenantID, true, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &rows,
			`SELECT `+canonicalColumns+`, COUNT(*) OVER() AS total
			FROM canonical_qa
			WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
			ORDER BY updated_at DESC
			LIMIT $3 OFFSET $4`,
			filter.TenantID, status, limit, filter.Offset)
		if err != nil {
			return apperr.DatabaseError("list canonical qa", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := 0
	result := make([]*domain.CanonicalQA, 0, len(rows))
	for i := range rows {
		total = rows[i].Total
		result = append(result, rows[i].toEntity())
	}
	return result, total, nil
}
