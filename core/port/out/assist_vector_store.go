// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// VectorStore is the tenant-scoped similarity index for chunks and
// canonical Q&A entries. Implementations must confine every statement to
// tenantID.
type VectorStore interface {
	// Search operations; results ordered by descending similarity, no minimum score.
	SearchChunks(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int) ([]*domain.DocChunkSource, error)
	SearchCanonical(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int) ([]*domain.CanonicalQASource, error)

	// ReplaceChunks atomically swaps the stored chunks of one version.
	ReplaceChunks(ctx context.Context, tenantID, versionID uuid.UUID, chunks []domain.StoredChunk) error
}
