package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks the indexing lifecycle of a document version.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusReady      DocumentStatus = "READY"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusReady, DocumentStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case DocumentStatusPending:
		return next == DocumentStatusProcessing || next == DocumentStatusFailed
	case DocumentStatusProcessing:
		return next == DocumentStatusReady || next == DocumentStatusFailed
	case DocumentStatusFailed, DocumentStatusReady:
		// reindex
		return next == DocumentStatusProcessing
	}
	return false
}

// Document is a tenant-owned knowledge source. Its content lives in
// immutable versions; CurrentVersionID points at the searchable one.
type Document struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Title            string
	Filename         string
	MimeType         string
	CurrentVersionID *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DocumentVersion is one uploaded revision of a document.
type DocumentVersion struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	DocumentID    uuid.UUID
	VersionNumber int
	BlobKey       string
	ContentHash   string
	SizeBytes     int64
	MimeType      string
	Status        DocumentStatus
	ChunkCount    int
	Error         *string
	CreatedAt     time.Time
	IndexedAt     *time.Time
}

// DocumentWithVersion is the read model returned by the API.
type DocumentWithVersion struct {
	Document
	Version *DocumentVersion
}

// DocumentFilter for listing documents
type DocumentFilter struct {
	TenantID uuid.UUID
	// Statuses matches the latest version's status; empty matches all.
	Statuses []DocumentStatus
	Limit    int
	Offset   int
}
