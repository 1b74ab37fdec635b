package in

import (
	"context"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// RetrievalService answers tenant queries with an audited citation payload.
type RetrievalService interface {
	Query(ctx context.Context, req *QueryRequest) (*domain.CitationPayload, error)
}

// DraftService generates a reply draft grounded in retrieved sources.
type DraftService interface {
	Generate(ctx context.Context, req *DraftRequest) (*DraftResult, error)
}

type QueryRequest struct {
	TenantID  uuid.UUID
	UserID    *uuid.UUID
	RequestID string
	Query     string
	// TopK is the raw requested count; nil selects the default.
	TopK *float64
}

type DraftRequest struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	RequestID    string
	Query        string
	Instructions string
	TopK         *float64
}

type DraftResult struct {
	Draft   string                  `json:"draft"`
	Model   string                  `json:"model"`
	Payload *domain.CitationPayload `json:"payload"`
}
