package draft

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"assist_server/core/agent/llm"
	"assist_server/core/agent/rag"
	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// Retriever produces a ranked citation payload for one tenant query.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.RetrievalRequest) (*domain.CitationPayload, error)
}

type Config struct {
	MaxTokens       int
	Temperature     float32
	MaxInstructions int
}

// Service implements in.DraftService.
type Service struct {
	retriever Retriever
	llm       out.LLMClient
	audit     out.AuditLog
	cfg       Config
	log       zerolog.Logger
}

var _ in.DraftService = (*Service)(nil)

func NewService(retriever Retriever, client out.LLMClient, audit out.AuditLog, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxInstructions <= 0 {
		cfg.MaxInstructions = 4000
	}
	return &Service{
		retriever: retriever,
		llm:       client,
		audit:     audit,
		cfg:       cfg,
		log:       log.With().Str("component", "draft_service").Logger(),
	}
}

// Generate returns a draft only after its audit record is written.
func (s *Service) Generate(ctx context.Context, req *in.DraftRequest) (*in.DraftResult, error) {
	start := time.Now()
	instructions := strings.TrimSpace(req.Instructions)
	if len([]rune(instructions)) > s.cfg.MaxInstructions {
		return nil, apperr.InvalidInput("instructions", "too long")
	}

	payload, err := s.retriever.Retrieve(ctx, rag.RetrievalRequest{
		TenantID: req.TenantID,
		Query:    req.Query,
		TopK:     req.TopK,
	})
	if err != nil {
		return nil, err
	}

	system, user := llm.BuildDraftPrompt(payload, instructions)
	completion, err := s.llm.Complete(ctx, out.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	draft := strings.TrimSpace(completion.Text)

	record := domain.NewAuditRecord(req.TenantID, req.UserID, domain.AuditActionDraftGenerate, payload)
	record.RequestID = req.RequestID
	record.Model = completion.Model
	record.DraftHash = hashDraft(draft)
	if err := s.audit.Write(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("request_id", req.RequestID).
		Int("query_len", len(req.Query)).
		Int("sources", len(payload.Sources)).
		Str("model", completion.Model).
		Int("prompt_tokens", completion.PromptTokens).
		Int("output_tokens", completion.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("draft generated")

	return &in.DraftResult{Draft: draft, Model: completion.Model, Payload: payload}, nil
}

func hashDraft(draft string) string {
	sum := sha256.Sum256([]byte(draft))
	return hex.EncodeToString(sum[:])
}
