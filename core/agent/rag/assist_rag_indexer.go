package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
	"assist_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoContent is returned for documents that yield no chunks.
var ErrNoContent = errors.New("document has no indexable text")

type IndexerConfig struct {
	BatchSize          int
	MaxParallelBatches int
}

func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		BatchSize:          64,
		MaxParallelBatches: 4,
	}
}

type IndexRequest struct {
	TenantID   uuid.UUID
	DocumentID uuid.UUID
	VersionID  uuid.UUID
	Text       string
}

// Indexer chunks a version's text, embeds the chunks in bounded parallel
// batches and replaces the version's stored chunks in one transaction.
type Indexer struct {
	chunker  *Chunker
	embedder Embedder
	store    out.VectorStore
	cfg      IndexerConfig
}

func NewIndexer(chunker *Chunker, embedder Embedder, store out.VectorStore, cfg IndexerConfig) *Indexer {
	def := DefaultIndexerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxParallelBatches <= 0 {
		cfg.MaxParallelBatches = def.MaxParallelBatches
	}
	if ceiling := embedder.MaxBatch(); ceiling > 0 && cfg.BatchSize > ceiling {
		cfg.BatchSize = ceiling
	}
	return &Indexer{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}
}

// IndexVersion returns the number of chunks stored. Nothing is written
// unless every batch embeds successfully.
func (i *Indexer) IndexVersion(ctx context.Context, req IndexRequest) (int, error) {
	start := time.Now()

	chunks := i.chunker.Chunk(NormalizeText(req.Text))
	if len(chunks) == 0 {
		return 0, apperr.InvalidInput("document", ErrNoContent.Error()).WithError(ErrNoContent)
	}

	stored := make([]domain.StoredChunk, len(chunks))
	for n, c := range chunks {
		stored[n] = domain.StoredChunk{
			ID:         uuid.New(),
			TenantID:   req.TenantID,
			DocumentID: req.DocumentID,
			VersionID:  req.VersionID,
			Chunk:      c,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.MaxParallelBatches)

	batches := 0
	for from := 0; from < len(stored); from += i.cfg.BatchSize {
		to := min(from+i.cfg.BatchSize, len(stored))
		batch := stored[from:to]
		batches++

		g.Go(func() error {
			texts := make([]string, len(batch))
			for n := range batch {
				texts[n] = batch[n].Content
			}
			res, err := i.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(res.Vectors) != len(batch) {
				return apperr.EmbeddingInvalid(fmt.Sprintf("expected %d vectors, got %d", len(batch), len(res.Vectors)))
			}
			for n := range batch {
				batch[n].Embedding = res.Vectors[n]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := i.store.ReplaceChunks(ctx, req.TenantID, req.VersionID, stored); err != nil {
		return 0, err
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  req.TenantID.String(),
		"version_id": req.VersionID.String(),
		"chunks":     len(stored),
		"batches":    batches,
	}).WithDuration(time.Since(start)).Info("version indexed")

	return len(stored), nil
}
