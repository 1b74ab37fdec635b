package out

import (
	"context"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// CanonicalQARepository stores canonical Q&A entries together with their
// embeddings, so an entry and the vector it is searched by change atomically.
type CanonicalQARepository interface {
	Create(ctx context.Context, qa *domain.CanonicalQA, embedding []float32) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error)
	// Update keeps the stored embedding when embedding is nil.
	Update(ctx context.Context, qa *domain.CanonicalQA, embedding []float32) error
	SetStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.CanonicalQAStatus) error
	List(ctx context.Context, filter *domain.CanonicalQAFilter) ([]*domain.CanonicalQA, int, error)
}
