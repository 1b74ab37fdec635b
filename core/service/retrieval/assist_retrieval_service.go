package retrieval

import (
	"context"
	"time"

	"assist_server/core/agent/rag"
	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/core/port/out"

	"github.com/rs/zerolog"
)

// Retriever produces a ranked citation payload for one tenant query.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.RetrievalRequest) (*domain.CitationPayload, error)
}

// Service implements in.RetrievalService. The full payload is returned to
// the caller; only its audit-safe form is persisted.
type Service struct {
	retriever Retriever
	audit     out.AuditLog
	log       zerolog.Logger
}

var _ in.RetrievalService = (*Service)(nil)

func NewService(retriever Retriever, audit out.AuditLog, log zerolog.Logger) *Service {
	return &Service{
		retriever: retriever,
		audit:     audit,
		log:       log.With().Str("component", "retrieval_service").Logger(),
	}
}

func (s *Service) Query(ctx context.Context, req *in.QueryRequest) (*domain.CitationPayload, error) {
	start := time.Now()

	payload, err := s.retriever.Retrieve(ctx, rag.RetrievalRequest{
		TenantID: req.TenantID,
		Query:    req.Query,
		TopK:     req.TopK,
	})
	if err != nil {
		return nil, err
	}

	record := domain.NewAuditRecord(req.TenantID, req.UserID, domain.AuditActionRetrievalQuery, payload)
	record.RequestID = req.RequestID
	if err := s.audit.Write(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("request_id", req.RequestID).
		Int("query_len", len(req.Query)).
		Int("sources", len(payload.Sources)).
		Str("reason", string(payload.Reason)).
		Dur("elapsed", time.Since(start)).
		Msg("retrieval served")
	return payload, nil
}
