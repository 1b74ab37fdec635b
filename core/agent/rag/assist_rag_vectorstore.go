package rag

import (
	"context"
	"fmt"

	"assist_server/core/domain"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore implements out.VectorStore on Postgres with pgvector.
// Each call runs in its own transaction with app.tenant_id set for the
// row-level-security policies, and every statement also filters on tenant_id.
type PgVectorStore struct {
	db *pgxpool.Pool
}

var _ out.VectorStore = (*PgVectorStore)(nil)

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) withTenant(ctx context.Context, tenantID uuid.UUID, mode pgx.TxAccessMode, fn func(tx pgx.Tx) error) error {
	if tenantID == uuid.Nil {
		return apperr.MissingField("tenant_id")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
	if err != nil {
		return apperr.DatabaseError("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID.String()); err != nil {
		return apperr.DatabaseError("set tenant scope", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.DatabaseError("commit", err)
	}
	return nil
}

const searchChunksQuery = `
	SELECT c.id, c.document_id, c.version_id, c.chunk_index,
		c.start_offset, c.end_offset, c.content, c.content_hash,
		1 - (c.embedding <=> $2::vector) AS score
	FROM document_chunks c
	JOIN documents d ON d.id = c.document_id AND d.tenant_id = c.tenant_id
	JOIN document_versions v ON v.id = c.version_id AND v.tenant_id = c.tenant_id
	WHERE c.tenant_id = $1
		AND d.current_version_id = c.version_id
		AND v.status = 'READY'
	ORDER BY c.embedding <=> $2::vector
	LIMIT $3
`

func (s *PgVectorStore) SearchChunks(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int) ([]*domain.DocChunkSource, error) {
	var results []*domain.DocChunkSource

	err := s.withTenant(ctx, tenantID, pgx.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, searchChunksQuery, tenantID, pgvector.NewVector(embedding), limit)
		if err != nil {
			return apperr.DatabaseError("search chunks", err)
		}
		defer rows.Close()

		for rows.Next() {
			r := &domain.DocChunkSource{TenantID: tenantID}
			if err := rows.Scan(
				&r.ChunkID, &r.DocumentID, &r.VersionID, &r.ChunkIndex,
				&r.StartOffset, &r.EndOffset, &r.Content, &r.ContentHash,
				&r.Score,
			); err != nil {
				return apperr.DatabaseError("scan chunk", err)
			}
			results = append(results, r)
		}
		if err := rows.Err(); err != nil {
			return apperr.DatabaseError("search chunks", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

const searchCanonicalQuery = `
	SELECT id, document_id, version_id, question, answer, status,
		1 - (embedding <=> $2::vector) AS score
	FROM canonical_qa
	WHERE tenant_id = $1
		AND status <> 'ARCHIVED'
		AND embedding IS NOT NULL
	ORDER BY embedding <=> $2::vector
	LIMIT $3
`

func (s *PgVectorStore) SearchCanonical(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int) ([]*domain.CanonicalQASource, error) {
	var results []*domain.CanonicalQASource

	err := s.withTenant(ctx, tenantID, pgx.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, searchCanonicalQuery, tenantID, pgvector.NewVector(embedding), limit)
		if err != nil {
			return apperr.DatabaseError("search canonical qa", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r                domain.CanonicalQASource
				docID, versionID uuid.NullUUID
				status           string
			)
			if err := rows.Scan(&r.CanonicalQAID, &docID, &versionID, &r.Question, &r.Answer, &status, &r.Score); err != nil {
				return apperr.DatabaseError("scan canonical qa", err)
			}
			r.Status = domain.CanonicalQAStatus(status)
			if docID.Valid {
				r.DocumentID = &docID.UUID
			}
			if versionID.Valid {
				r.VersionID = &versionID.UUID
			}
			results = append(results, &r)
		}
		if err := rows.Err(); err != nil {
			return apperr.DatabaseError("search canonical qa", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PgVectorStore) ReplaceChunks(ctx context.Context, tenantID, versionID uuid.UUID, chunks []domain.StoredChunk) error {
	return s.withTenant(ctx, tenantID, pgx.ReadWrite, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM document_chunks WHERE tenant_id = $1 AND version_id = $2`,
			tenantID, versionID,
		); err != nil {
			return apperr.DatabaseError("delete chunks", err)
		}

		batch := &pgx.Batch{}
		for i := range chunks {
			c := &chunks[i]
			if c.TenantID != tenantID || c.VersionID != versionID {
				return apperr.Internal(fmt.Sprintf("chunk %d does not belong to version %s", c.Index, versionID))
			}
			batch.Queue(`
				INSERT INTO document_chunks (
					id, tenant_id, document_id, version_id, chunk_index,
					start_offset, end_offset, content, content_hash, embedding, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, NOW())`,
				c.ID, c.TenantID, c.DocumentID, c.VersionID, c.Index,
				c.StartOffset, c.EndOffset, c.Content, c.ContentHash,
				pgvector.NewVector(c.Embedding),
			)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return apperr.DatabaseError("insert chunk", err)
			}
		}
		if err := br.Close(); err != nil {
			return apperr.DatabaseError("insert chunks", err)
		}
		return nil
	})
}
