package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names the operation an audit record describes.
type AuditAction string

const (
	AuditActionRetrievalQuery AuditAction = "retrieval.query"
	AuditActionDraftGenerate  AuditAction = "draft.generate"
)

// AuditRecord is the durable trace of a retrieval-backed operation.
// Payload is always the audit-safe form.
type AuditRecord struct {
	ID        uuid.UUID        `json:"id" bson:"_id"`
	TenantID  uuid.UUID        `json:"tenant_id" bson:"tenant_id"`
	UserID    *uuid.UUID       `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Action    AuditAction      `json:"action" bson:"action"`
	RequestID string           `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Payload   *CitationPayload `json:"payload" bson:"-"`
	Model     string           `json:"model,omitempty" bson:"model,omitempty"`
	DraftHash string           `json:"draft_hash,omitempty" bson:"draft_hash,omitempty"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}

// NewAuditRecord redacts payload before attaching it.
func NewAuditRecord(tenantID uuid.UUID, userID *uuid.UUID, action AuditAction, payload *CitationPayload) *AuditRecord {
	return &AuditRecord{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Payload:   payload.AuditSafe(),
		CreatedAt: time.Now().UTC(),
	}
}
