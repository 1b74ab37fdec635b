// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// DocumentService manages uploads and the indexing lifecycle.
type DocumentService interface {
	Upload(ctx context.Context, req *UploadDocumentRequest) (*domain.DocumentWithVersion, error)
	Get(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentWithVersion, error)
	List(ctx context.Context, filter *domain.DocumentFilter) (*DocumentListResponse, error)
	// Reindex queues a fresh version built from the latest version's blob.
	Reindex(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentVersion, error)
	// ProcessIndex runs one index job. Permanent failures are reported with
	// errors for which apperr.IsPermanent is true.
	ProcessIndex(ctx context.Context, tenantID, versionID uuid.UUID) error
}

// UploadDocumentRequest creates a document, or a new version when
// DocumentID is set.
type UploadDocumentRequest struct {
	TenantID   uuid.UUID
	DocumentID *uuid.UUID
	Title      string
	Filename   string
	MimeType   string
	Data       []byte
}

type DocumentListResponse struct {
	Documents []*domain.DocumentWithVersion `json:"documents"`
	Total     int                           `json:"total"`
}
