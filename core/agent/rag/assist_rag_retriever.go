package rag

import (
	"context"
	"math"
	"strings"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
	"assist_server/pkg/logger"

	"github.com/google/uuid"
)

// RetrieverConfig bounds result counts and excerpt size.
type RetrieverConfig struct {
	DefaultTopK   int
	MaxTopK       int
	ExcerptLength int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultTopK:   5,
		MaxTopK:       20,
		ExcerptLength: DefaultExcerptLength,
	}
}

// ResolveTopK applies the default to a missing or non-finite value and
// clamps the rest to [1, MaxTopK].
func (c RetrieverConfig) ResolveTopK(v *float64) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return c.DefaultTopK
	}
	k := math.Trunc(*v)
	if k < 1 {
		return 1
	}
	if k > float64(c.MaxTopK) {
		return c.MaxTopK
	}
	return int(k)
}

// RetrievalRequest is one tenant query.
type RetrievalRequest struct {
	TenantID uuid.UUID
	Query    string
	TopK     *float64
}

// Retriever embeds a query, searches both candidate pools for the tenant and
// assembles a ranked citation payload.
type Retriever struct {
	embedder Embedder
	store    out.VectorStore
	ranker   *Ranker
	cfg      RetrieverConfig
}

func NewRetriever(embedder Embedder, store out.VectorStore, cfg RetrieverConfig) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.DefaultTopK <= 0 || cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = min(def.DefaultTopK, cfg.MaxTopK)
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = def.ExcerptLength
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		ranker:   NewRanker(),
		cfg:      cfg,
	}
}

// Retrieve returns the full payload, content and answers included.
// Callers persisting it must use payload.AuditSafe(). On error no payload
// is returned.
func (r *Retriever) Retrieve(ctx context.Context, req RetrievalRequest) (*domain.CitationPayload, error) {
	start := time.Now()

	if req.TenantID == uuid.Nil {
		return nil, apperr.MissingField("tenant_id")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.InvalidQuery("query must not be empty")
	}
	topK := r.cfg.ResolveTopK(req.TopK)

	vec, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}

	canonical, err := r.store.SearchCanonical(ctx, req.TenantID, vec, topK)
	if err != nil {
		return nil, err
	}
	chunks, err := r.store.SearchChunks(ctx, req.TenantID, vec, topK)
	if err != nil {
		return nil, err
	}

	ranked := r.ranker.Merge(canonical, chunks)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	for _, src := range ranked {
		switch s := src.(type) {
		case *domain.DocChunkSource:
			s.Excerpt = BuildExcerpt(s.Content, r.cfg.ExcerptLength)
		case *domain.CanonicalQASource:
			s.Excerpt = BuildExcerpt(s.Answer, r.cfg.ExcerptLength)
		}
	}

	payload := domain.NewCitationPayload(query, ranked)

	logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  req.TenantID.String(),
		"query_len":  len(query),
		"top_k":      topK,
		"candidates": len(canonical) + len(chunks),
		"sources":    len(payload.Sources),
		"reason":     string(payload.Reason),
	}).WithDuration(time.Since(start)).Debug("retrieval completed")

	return payload, nil
}
