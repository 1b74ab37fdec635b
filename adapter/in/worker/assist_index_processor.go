package worker

import (
	"context"

	"assist_server/core/port/in"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
	"assist_server/pkg/logger"

	"github.com/google/uuid"
)

// IndexProcessor runs document.index jobs.
type IndexProcessor struct {
	documents in.DocumentService
}

func NewIndexProcessor(documents in.DocumentService) *IndexProcessor {
	return &IndexProcessor{documents: documents}
}

func (p *IndexProcessor) ProcessIndex(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.IndexJob](msg)
	if err != nil {
		return apperr.InvalidInput("payload", err.Error())
	}
	if job.TenantID == uuid.Nil || job.VersionID == uuid.Nil {
		return apperr.MissingField("tenant_id/version_id")
	}

	log := logger.WithFields(map[string]any{
		"job":        JobDocumentIndex,
		"tenant_id":  job.TenantID.String(),
		"version_id": job.VersionID.String(),
		"attempts":   msg.Attempts,
	})

	if err := p.documents.ProcessIndex(ctx, job.TenantID, job.VersionID); err != nil {
		log.WithError(err).Warn("index job failed")
		return err
	}
	log.Debug("index job done")
	return nil
}
