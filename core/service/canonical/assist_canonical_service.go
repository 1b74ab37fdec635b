package canonical

import (
	"context"
	"strings"

	"assist_server/core/agent/rag"
	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements in.CanonicalQAService. Entries are embedded on every
// text change so search always sees the current wording.
type Service struct {
	repo     out.CanonicalQARepository
	embedder rag.Embedder
	log      zerolog.Logger
}

var _ in.CanonicalQAService = (*Service)(nil)

func NewService(repo out.CanonicalQARepository, embedder rag.Embedder, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		log:      log.With().Str("component", "canonical_service").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, req *in.CreateCanonicalQARequest) (*domain.CanonicalQA, error) {
	question, answer, err := validateText(req.Question, req.Answer)
	if err != nil {
		return nil, err
	}

	qa := &domain.CanonicalQA{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		DocumentID: req.DocumentID,
		VersionID:  req.VersionID,
		Question:   question,
		Answer:     answer,
		Status:     domain.CanonicalQAStatusDraft,
		CreatedBy:  req.CreatedBy,
	}

	// embed first so a provider failure leaves nothing behind
	vec, err := rag.EmbedOne(ctx, s.embedder, qa.EmbeddingText())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, qa, vec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", qa.TenantID.String()).
		Str("canonical_qa_id", qa.ID.String()).
		Msg("canonical qa created")
	return qa, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) Update(ctx context.Context, req *in.UpdateCanonicalQARequest) (*domain.CanonicalQA, error) {
	qa, err := s.repo.Get(ctx, req.TenantID, req.ID)
	if err != nil {
		return nil, err
	}
	if qa.Status == domain.CanonicalQAStatusArchived {
		return nil, apperr.Conflict("archived entries cannot be edited")
	}

	question, answer := qa.Question, qa.Answer
	if req.Question != nil {
		question = *req.Question
	}
	if req.Answer != nil {
		answer = *req.Answer
	}
	question, answer, err = validateText(question, answer)
	if err != nil {
		return nil, err
	}

	textChanged := question != qa.Question || answer != qa.Answer
	qa.Question = question
	qa.Answer = answer
	if req.DocumentID != nil {
		qa.DocumentID = req.DocumentID
	}
	if req.VersionID != nil {
		qa.VersionID = req.VersionID
	}

	var vec []float32
	if textChanged {
		if vec, err = rag.EmbedOne(ctx, s.embedder, qa.EmbeddingText()); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, qa, vec); err != nil {
		return nil, err
	}
	return qa, nil
}

func (s *Service) Approve(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error) {
	return s.setStatus(ctx, tenantID, id, domain.CanonicalQAStatusApproved)
}

func (s *Service) Archive(ctx context.Context, tenantID, id uuid.UUID) (*domain.CanonicalQA, error) {
	return s.setStatus(ctx, tenantID, id, domain.CanonicalQAStatusArchived)
}

func (s *Service) setStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.CanonicalQAStatus) (*domain.CanonicalQA, error) {
	qa, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if qa.Status == status {
		return qa, nil
	}
	if qa.Status == domain.CanonicalQAStatusArchived {
		return nil, apperr.Conflict("archived entries cannot change status")
	}
	if err := s.repo.SetStatus(ctx, tenantID, id, status); err != nil {
		return nil, err
	}
	qa.Status = status

	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("canonical_qa_id", id.String()).
		Str("status", string(status)).
		Msg("canonical qa status changed")
	return qa, nil
}

func (s *Service) List(ctx context.Context, filter *domain.CanonicalQAFilter) (*in.CanonicalQAListResponse, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.InvalidInput("status", string(*filter.Status))
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &in.CanonicalQAListResponse{Entries: entries, Total: total}, nil
}

func validateText(question, answer string) (string, string, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" {
		return "", "", apperr.MissingField("question")
	}
	if answer == "" {
		return "", "", apperr.MissingField("answer")
	}
	return question, answer, nil
}
