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
	"github.com/lib/pq"
)

// DocumentAdapter implements out.DocumentRepository using PostgreSQL.
type DocumentAdapter struct {
	db *sqlx.DB
}

var _ out.DocumentRepository = (*DocumentAdapter)(nil)

func NewDocumentAdapter(db *sqlx.DB) *DocumentAdapter {
	return &DocumentAdapter{db: db}
}

type documentRow struct {
	ID               uuid.UUID     `db:"id"`
	TenantID         uuid.UUID     `db:"tenant_id"`
	Title            string        `db:"title"`
	Filename         string        `db:"filename"`
	MimeType         string        `db:"mime_type"`
	CurrentVersionID uuid.NullUUID `db:"current_version_id"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

func (r *documentRow) toEntity() *domain.Document {
	doc := &domain.Document{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Title:     r.Title,
		Filename:  r.Filename,
		MimeType:  r.MimeType,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.CurrentVersionID.Valid {
		id := r.CurrentVersionID.UUID
		doc.CurrentVersionID = &id
	}
	return doc
}

type versionRow struct {
	ID            uuid.UUID      `db:"id"`
	TenantID      uuid.UUID      `db:"tenant_id"`
	DocumentID    uuid.UUID      `db:"document_id"`
	VersionNumber int            `db:"version_number"`
	BlobKey       string         `db:"blob_key"`
	ContentHash   string         `db:"content_hash"`
	SizeBytes     int64          `db:"size_bytes"`
	MimeType      string         `db:"mime_type"`
	Status        string         `db:"status"`
	ChunkCount    int            `db:"chunk_count"`
	Error         sql.NullString `db:"error"`
	CreatedAt     time.Time      `db:"created_at"`
	IndexedAt     sql.NullTime   `db:"indexed_at"`
}

func (r *versionRow) toEntity() *domain.DocumentVersion {
	v := &domain.DocumentVersion{
		ID:            r.ID,
		TenantID:      r.TenantID,
		DocumentID:    r.DocumentID,
		VersionNumber: r.VersionNumber,
		BlobKey:       r.BlobKey,
		ContentHash:   r.ContentHash,
		SizeBytes:     r.SizeBytes,
		MimeType:      r.MimeType,
		Status:        domain.DocumentStatus(r.Status),
		ChunkCount:    r.ChunkCount,
		CreatedAt:     r.CreatedAt,
	}
	if r.Error.Valid {
		msg := r.Error.String
		v.Error = &msg
	}
	if r.IndexedAt.Valid {
		t := r.IndexedAt.Time
		v.IndexedAt = &t
	}
	return v
}

const versionColumns = `id, tenant_id, document_id, version_number, blob_key, content_hash,
	size_bytes, mime_type, status, chunk_count, error, created_at, indexed_at`

func (a *DocumentAdapter) CreateDocument(ctx context.Context, doc *domain.Document) error {
	return withTenant(ctx, a.db, doc.TenantID, false, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO documents (id, tenant_id, title, filename, mime_type)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at`,
			doc.ID, doc.TenantID, doc.Title, doc.Filename, doc.MimeType,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return apperr.DatabaseError("create document", err)
		}
		return nil
	})
}

func (a *DocumentAdapter) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*domain.Document, error) {
	var row documentRow
	err := withTenant(ctx, a.db, tenantID, true, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, `
			SELECT id, tenant_id, title, filename, mime_type, current_version_id, created_at, updated_at
			FROM documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("document")
		}
		if err != nil {
			return apperr.DatabaseError("get document", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

type documentListRow struct {
	documentRow
	VersionID     uuid.NullUUID  `db:"v_id"`
	VersionNumber sql.NullInt64  `db:"v_version_number"`
	BlobKey       sql.NullString `db:"v_blob_key"`
	ContentHash   sql.NullString `db:"v_content_hash"`
	SizeBytes     sql.NullInt64  `db:"v_size_bytes"`
	VersionMime   sql.NullString `db:"v_mime_type"`
	Status        sql.NullString `db:"v_status"`
	ChunkCount    sql.NullInt64  `db:"v_chunk_count"`
	Error         sql.NullString `db:"v_error"`
	VCreatedAt    sql.NullTime   `db:"v_created_at"`
	IndexedAt     sql.NullTime   `db:"v_indexed_at"`
	Total         int            `db:"total"`
}

func (a *DocumentAdapter) ListDocuments(ctx context.Context, filter *domain.DocumentFilter) ([]*domain.DocumentWithVersion, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT d.id, d.tenant_id, d.title, d.filename, d.mime_type, d.current_version_id,
			d.created_at, d.updated_at,
			v.id AS v_id, v.version_number AS v_version_number, v.blob_key AS v_blob_key,
			v.content_hash AS v_content_hash, v.size_bytes AS v_size_bytes,
			v.mime_type AS v_mime_type, v.status AS v_status, v.chunk_count AS v_chunk_count,
			v.error AS v_error, v.created_at AS v_created_at, v.indexed_at AS v_indexed_at,
			COUNT(*) OVER() AS total
		FROM documents d
		LEFT JOIN LATERAL (
			SELECT * FROM document_versions dv
			WHERE dv.tenant_id = d.tenant_id AND dv.document_id = d.id
			ORDER BY dv.version_number DESC
			LIMIT 1
		) v ON TRUE
		WHERE d.tenant_id = $1
			AND (cardinality($2::text[]) = 0 OR v.status = ANY($2::text[]))
		ORDER BY d.updated_at DESC
		LIMIT $3 OFFSET $4
	`

	statuses := make(pq.StringArray, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}

	var rows []documentListRow
	err := withTenant(ctx, a.db, filter.TenantID, true, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &rows, query, filter.TenantID, statuses, limit, filter.Offset); err != nil {
			return apperr.DatabaseError("list documents", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := 0
	result := make([]*domain.DocumentWithVersion, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		total = r.Total
		item := &domain.DocumentWithVersion{Document: *r.documentRow.toEntity()}
		if r.VersionID.Valid {
			vr := versionRow{
				ID:            r.VersionID.UUID,
				TenantID:      r.TenantID,
				DocumentID:    r.ID,
				VersionNumber: int(r.VersionNumber.Int64),
				BlobKey:       r.BlobKey.String,
				ContentHash:   r.ContentHash.String,
				SizeBytes:     r.SizeBytes.Int64,
				MimeType:      r.VersionMime.String,
				Status:        r.Status.String,
				ChunkCount:    int(r.ChunkCount.Int64),
				Error:         r.Error,
				CreatedAt:     r.VCreatedAt.Time,
				IndexedAt:     r.IndexedAt,
			}
			item.Version = vr.toEntity()
		}
		result = append(result, item)
	}
	return result, total, nil
}

// MarkVersionReady records a finished index run and, in the same transaction,
// makes the version current unless the document already points at a version
// with a higher number. It reports whether the current pointer moved.
func (a *DocumentAdapter) MarkVersionReady(ctx context.Context, tenantID, documentID, versionID uuid.UUID, chunkCount int, indexedAt time.Time) (bool, error) {
	promoted := false
	err := withTenant(ctx, a.db, tenantID, false, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE document_versions SET
				status = 'READY',
				chunk_count = $4,
				error = NULL,
				indexed_at = COALESCE(indexed_at, $5)
			WHERE tenant_id = $1 AND document_id = $2 AND id = $3`,
			tenantID, documentID, versionID, chunkCount, indexedAt)
		if err != nil {
			return apperr.DatabaseError("mark version ready", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("document version")
		}

		// serializes promotions of the same document
		var current uuid.NullUUID
		err = tx.GetContext(ctx, &current,
			`SELECT current_version_id FROM documents WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID, documentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("document")
		}
		if err != nil {
			return apperr.DatabaseError("lock document", err)
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE documents d SET current_version_id = v.id, updated_at = NOW()
			FROM document_versions v
			WHERE d.tenant_id = $1 AND d.id = $2
				AND v.tenant_id = $1 AND v.id = $3 AND v.document_id = d.id
				AND (d.current_version_id IS NULL OR v.version_number > (
					SELECT cv.version_number FROM document_versions cv
					WHERE cv.tenant_id = $1 AND cv.id = d.current_version_id))`,
			tenantID, documentID, versionID)
		if err != nil {
			return apperr.DatabaseError("set current version", err)
		}
		n, _ := res.RowsAffected()
		promoted = n > 0
		return nil
	})
	return promoted, err
}

func (a *DocumentAdapter) CreateVersion(ctx context.Context, v *domain.DocumentVersion) error {
	return withTenant(ctx, a.db, v.TenantID, false, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO document_versions (
				id, tenant_id, document_id, version_number, blob_key, content_hash,
				size_bytes, mime_type, status, chunk_count
			) VALUES (
				$1, $2, $3,
				COALESCE((SELECT MAX(version_number) FROM document_versions WHERE tenant_id = $2 AND document_id = $3), 0) + 1,
				$4, $5, $6, $7, $8, 0
			)
			RETURNING version_number, created_at`,
			v.ID, v.TenantID, v.DocumentID, v.BlobKey, v.ContentHash,
			v.SizeBytes, v.MimeType, string(v.Status),
		).Scan(&v.VersionNumber, &v.CreatedAt)
		if err != nil {
			return apperr.DatabaseError("create version", err)
		}
		return nil
	})
}

func (a *DocumentAdapter) GetVersion(ctx context.Context, tenantID, id uuid.UUID) (*domain.DocumentVersion, error) {
	return a.getVersion(ctx, tenantID, "get version",
		`SELECT `+versionColumns+` FROM document_versions WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
}

func (a *DocumentAdapter) LatestVersion(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	return a.getVersion(ctx, tenantID, "latest version",
		`SELECT `+versionColumns+` FROM document_versions
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY version_number DESC LIMIT 1`,
		tenantID, documentID)
}

func (a *DocumentAdapter) getVersion(ctx context.Context, tenantID uuid.UUID, op, query string, args ...any) (*domain.DocumentVersion, error) {
	var row versionRow
	err := withTenant(ctx, a.db, tenantID, true, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("document version")
		}
		if err != nil {
			return apperr.DatabaseError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (a *DocumentAdapter) UpdateVersionStatus(ctx context.Context, tenantID, id uuid.UUID, update out.VersionStatusUpdate) error {
	return withTenant(ctx, a.db, tenantID, false, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE document_versions SET
				status = $3,
				chunk_count = COALESCE($4, chunk_count),
				error = $5,
				indexed_at = COALESCE($6, indexed_at)
			WHERE tenant_id = $1 AND id = $2`,
			tenantID, id, string(update.Status), update.ChunkCount, update.Error, update.IndexedAt)
		if err != nil {
			return apperr.DatabaseError("update version status", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("document version")
		}
		return nil
	})
}
