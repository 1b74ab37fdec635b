package in

import (
	"context"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// CanonicalQAService curates approved answers.
type CanonicalQAService interface {
	Create(ctx context.Context, req *CreateCanonicalQARequest) (*domain.CanonicalQA, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error)
	Update(ctx context.Context, req *UpdateCanonicalQARequest) (*domain.CanonicalQA, error)
	Approve(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error)
	Archive(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error)
	List(ctx context.Context, filter *domain.CanonicalQAFilter) (*CanonicalQAListResponse, error)
}

type CreateCanonicalQARequest struct {
	TenantID   uuid.UUID
	CreatedBy  *uuid.UUID
	DocumentID *uuid.UUID
	VersionID  *uuid.UUID
	Question   string
	Answer     string
}

// UpdateCanonicalQARequest changes only the non-nil fields.
type UpdateCanonicalQARequest struct {
	TenantID   uuid.UUID
	ID         uuid.UUID
	Question   *string
	Answer     *string
	DocumentID *uuid.UUID
	VersionID  *uuid.UUID
}

type CanonicalQAListResponse struct {
	Entries []*domain.CanonicalQA `json:"entries"`
	Total   int                   `json:"total"`
}
