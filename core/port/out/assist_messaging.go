package out

import (
	"context"

	"github.com/google/uuid"
)

// IndexJob asks a worker to index one document version.
type IndexJob struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	VersionID uuid.UUID `json:"version_id"`
}

// JobPublisher enqueues background work with at-least-once delivery.
type JobPublisher interface {
	PublishIndexJob(ctx context.Context, job IndexJob) error
}
