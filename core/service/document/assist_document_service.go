package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"assist_server/core/agent/rag"
	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultMaxUploadBytes = 25 << 20

// VersionIndexer stores the chunks and embeddings of one version's text.
type VersionIndexer interface {
	IndexVersion(ctx context.Context, req rag.IndexRequest) (int, error)
}

type Config struct {
	MaxUploadBytes int64
}

// Service implements in.DocumentService
type Service struct {
	repo      out.DocumentRepository
	blobs     out.BlobStore
	extractor out.TextExtractor
	indexer   VersionIndexer
	jobs      out.JobPublisher
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

var _ in.DocumentService = (*Service)(nil)

func NewService(
	repo out.DocumentRepository,
	blobs out.BlobStore,
	extractor out.TextExtractor,
	indexer VersionIndexer,
	jobs out.JobPublisher,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Service{
		repo:      repo,
		blobs:     blobs,
		extractor: extractor,
		indexer:   indexer,
		jobs:      jobs,
		cfg:       cfg,
		log:       log.With().Str("component", "document_service").Logger(),
		now:       time.Now,
	}
}

// BlobKey is content-addressed per tenant, so identical uploads share bytes.
func BlobKey(tenantID uuid.UUID, contentHash string) string {
	return fmt.Sprintf("tenants/%s/blobs/%s", tenantID, contentHash)
}

func (s *Service) Upload(ctx context.Context, req *in.UploadDocumentRequest) (*domain.DocumentWithVersion, error) {
	if len(req.Data) == 0 {
		return nil, apperr.InvalidInput("file", "empty upload")
	}
	if int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		return nil, apperr.InvalidInput("file", fmt.Sprintf("larger than %d bytes", s.cfg.MaxUploadBytes))
	}
	mimeType, ok := s.extractor.Resolve(req.MimeType, req.Filename)
	if !ok {
		return nil, apperr.UnsupportedType(req.MimeType, nil)
	}

	sum := sha256.Sum256(req.Data)
	contentHash := hex.EncodeToString(sum[:])

	var doc *domain.Document
	if req.DocumentID != nil {
		existing, err := s.repo.GetDocument(ctx, req.TenantID, *req.DocumentID)
		if err != nil {
			return nil, err
		}
		doc = existing

		// Re-uploading the content of the latest live version is a no-op.
		latest, err := s.repo.LatestVersion(ctx, req.TenantID, doc.ID)
		if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, err
		}
		if latest != nil && latest.ContentHash == contentHash && latest.Status != domain.DocumentStatusFailed {
			return &domain.DocumentWithVersion{Document: *doc, Version: latest}, nil
		}
	}

	key := BlobKey(req.TenantID, contentHash)
	exists, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.blobs.Put(ctx, key, req.Data, mimeType); err != nil {
			return nil, err
		}
	}

	if doc == nil {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = req.Filename
		}
		doc = &domain.Document{
			ID:       uuid.New(),
			TenantID: req.TenantID,
			Title:    title,
			Filename: req.Filename,
			MimeType: mimeType,
		}
		if err := s.repo.CreateDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	version := &domain.DocumentVersion{
		ID:          uuid.New(),
		TenantID:    req.TenantID,
		DocumentID:  doc.ID,
		BlobKey:     key,
		ContentHash: contentHash,
		SizeBytes:   int64(len(req.Data)),
		MimeType:    mimeType,
		Status:      domain.DocumentStatusPending,
	}
	if err := s.repo.CreateVersion(ctx, version); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("document_id", doc.ID.String()).
		Str("version_id", version.ID.String()).
		Int("version", version.VersionNumber).
		Int64("size_bytes", version.SizeBytes).
		Str("mime_type", mimeType).
		Msg("document version queued")

	return &domain.DocumentWithVersion{Document: *doc, Version: version}, nil
}

// enqueue publishes the index job; a version that could not be queued is
// marked FAILED so it can be reindexed.
func (s *Service) enqueue(ctx context.Context, v *domain.DocumentVersion) error {
	err := s.jobs.PublishIndexJob(ctx, out.IndexJob{TenantID: v.TenantID, VersionID: v.ID})
	if err == nil {
		return nil
	}
	msg := "enqueue failed"
	if markErr := s.repo.UpdateVersionStatus(ctx, v.TenantID, v.ID, out.VersionStatusUpdate{
		Status: domain.DocumentStatusFailed,
		Error:  &msg,
	}); markErr != nil {
		s.log.Error().Err(markErr).Str("version_id", v.ID.String()).Msg("failed to mark unqueued version")
	}
	return apperr.ExternalError("job queue", err)
}

func (s *Service) Get(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentWithVersion, error) {
	doc, err := s.repo.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.LatestVersion(ctx, tenantID, documentID)
	if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, err
	}
	return &domain.DocumentWithVersion{Document: *doc, Version: latest}, nil
}

func (s *Service) List(ctx context.Context, filter *domain.DocumentFilter) (*in.DocumentListResponse, error) {
	docs, total, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &in.DocumentListResponse{Documents: docs, Total: total}, nil
}

func (s *Service) Reindex(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	latest, err := s.repo.LatestVersion(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if latest.Status == domain.DocumentStatusPending || latest.Status == domain.DocumentStatusProcessing {
		return nil, apperr.Conflict("document is already being indexed")
	}

	version := &domain.DocumentVersion{
		ID:          uuid.New(),
		TenantID:    tenantID,
		DocumentID:  documentID,
		BlobKey:     latest.BlobKey,
		ContentHash: latest.ContentHash,
		SizeBytes:   latest.SizeBytes,
		MimeType:    latest.MimeType,
		Status:      domain.DocumentStatusPending,
	}
	if err := s.repo.CreateVersion(ctx, version); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

func (s *Service) ProcessIndex(ctx context.Context, tenantID, versionID uuid.UUID) error {
	start := s.now()
	log := s.log.With().
		Str("tenant_id", tenantID.String()).
		Str("version_id", versionID.String()).
		Logger()

	version, err := s.repo.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return err
	}
	switch version.Status {
	case domain.DocumentStatusReady:
		// duplicate delivery; promotion is idempotent and forward-only
		indexedAt := s.now().UTC()
		if version.IndexedAt != nil {
			indexedAt = *version.IndexedAt
		}
		if _, err := s.repo.MarkVersionReady(ctx, tenantID, version.DocumentID, versionID, version.ChunkCount, indexedAt); err != nil {
			return err
		}
		log.Debug().Msg("version already indexed")
		return nil
	case domain.DocumentStatusProcessing:
		// redelivery after a crashed attempt
	default:
		if !version.Status.CanTransitionTo(domain.DocumentStatusProcessing) {
			return apperr.Conflict(fmt.Sprintf("version in status %s cannot be indexed", version.Status))
		}
		if err := s.repo.UpdateVersionStatus(ctx, tenantID, versionID, out.VersionStatusUpdate{
			Status: domain.DocumentStatusProcessing,
		}); err != nil {
			return err
		}
	}

	count, err := s.index(ctx, version)
	if err != nil {
		s.markFailed(ctx, version, err)
		log.Warn().Err(err).Bool("permanent", isPermanent(err)).Msg("indexing failed")
		return err
	}

	promoted, err := s.repo.MarkVersionReady(ctx, tenantID, version.DocumentID, versionID, count, s.now().UTC())
	if err != nil {
		return err
	}

	log.Info().
		Int("chunks", count).
		Bool("current", promoted).
		Dur("elapsed", s.now().Sub(start)).
		Msg("version indexed")
	return nil
}

func (s *Service) index(ctx context.Context, v *domain.DocumentVersion) (int, error) {
	doc, err := s.repo.GetDocument(ctx, v.TenantID, v.DocumentID)
	if err != nil {
		return 0, err
	}
	data, err := s.blobs.Get(ctx, v.BlobKey)
	if err != nil {
		return 0, err
	}
	text, err := s.extractor.Extract(ctx, data, v.MimeType, doc.Filename)
	if err != nil {
		return 0, err
	}
	return s.indexer.IndexVersion(ctx, rag.IndexRequest{
		TenantID:   v.TenantID,
		DocumentID: v.DocumentID,
		VersionID:  v.ID,
		Text:       text.Text,
	})
}

func (s *Service) markFailed(ctx context.Context, v *domain.DocumentVersion, cause error) {
	msg := failureMessage(cause)
	// the job context may already be past its deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.UpdateVersionStatus(ctx, v.TenantID, v.ID, out.VersionStatusUpdate{
		Status: domain.DocumentStatusFailed,
		Error:  &msg,
	}); err != nil {
		s.log.Error().Err(err).Str("version_id", v.ID.String()).Msg("failed to mark version failed")
	}
}

func isPermanent(err error) bool {
	return apperr.IsPermanent(err) || errors.Is(err, rag.ErrNoContent)
}

// failureMessage keeps provider details out of the stored error text.
func failureMessage(err error) string {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Code + ": " + appErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.CodeTimeout + ": indexing timed out"
	}
	return apperr.CodeInternalError + ": indexing failed"
}
