package out

import (
	"context"

	"assist_server/core/domain"
)

// AuditLog records retrieval-backed operations. Records carry only the
// audit-safe payload built by domain.NewAuditRecord.
type AuditLog interface {
	Write(ctx context.Context, record *domain.AuditRecord) error
}
