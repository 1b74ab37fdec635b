package out

import (
	"context"
	"time"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

// DocumentRepository persists documents and their versions.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*domain.Document, error)
	ListDocuments(ctx context.Context, filter *domain.DocumentFilter) ([]*domain.DocumentWithVersion, int, error)

	CreateVersion(ctx context.Context, v *domain.DocumentVersion) error
	GetVersion(ctx context.Context, tenantID, id uuid.UUID) (*domain.DocumentVersion, error)
	LatestVersion(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentVersion, error)
	UpdateVersionStatus(ctx context.Context, tenantID, id uuid.UUID, update VersionStatusUpdate) error

	// MarkVersionReady atomically marks the version READY and makes it the
	// document's current version unless a higher-numbered version already
	// is. The result reports whether the current version changed.
	MarkVersionReady(ctx context.Context, tenantID, documentID, versionID uuid.UUID, chunkCount int, indexedAt time.Time) (bool, error)
}

// VersionStatusUpdate moves a version through its lifecycle.
type VersionStatusUpdate struct {
	Status     domain.DocumentStatus
	ChunkCount *int
	Error      *string
	IndexedAt  *time.Time
}
