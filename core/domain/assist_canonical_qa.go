package domain

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalQAStatus is the review state of a curated answer.
type CanonicalQAStatus string

const (
	CanonicalQAStatusDraft    CanonicalQAStatus = "DRAFT"
	CanonicalQAStatusApproved CanonicalQAStatus = "APPROVED"
	CanonicalQAStatusArchived CanonicalQAStatus = "ARCHIVED"
)

func (s CanonicalQAStatus) Valid() bool {
	switch s {
	case CanonicalQAStatusDraft, CanonicalQAStatusApproved, CanonicalQAStatusArchived:
		return true
	}
	return false
}

// CanonicalQA is a curated question/answer pair, optionally tied to the
// document version it was written from.
type CanonicalQA struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	DocumentID *uuid.UUID
	VersionID  *uuid.UUID
	Question   string
	Answer     string
	Status     CanonicalQAStatus
	CreatedBy  *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EmbeddingText is the text the entry is embedded under.
func (q *CanonicalQA) EmbeddingText() string {
	return q.Question + "\n\n" + q.Answer
}

// CanonicalQAFilter for listing entries
type CanonicalQAFilter struct {
	TenantID uuid.UUID
	Status   *CanonicalQAStatus
	Limit    int
	Offset   int
}
