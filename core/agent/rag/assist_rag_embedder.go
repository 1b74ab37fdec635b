package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"assist_server/pkg/apperr"
	"assist_server/pkg/httputil"
	"assist_server/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536
	DefaultEmbeddingMaxBatch   = 96
)

// ErrBatchTooLarge is returned when a caller exceeds the provider batch ceiling.
var ErrBatchTooLarge = errors.New("embedding batch exceeds provider ceiling")

// EmbeddingResult holds one vector per input, in input order.
type EmbeddingResult struct {
	Model   string
	Vectors [][]float32
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (*EmbeddingResult, error)
	Dimensions() int
	MaxBatch() int
}

type OpenAIEmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxBatch   int
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint behind a circuit breaker
// and validates every response before handing it out.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	maxBatch   int
	cb         *gobreaker.CircuitBreaker
}

func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultEmbeddingMaxBatch
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewOptimizedClient(httputil.OpenAIClientConfig(60 * time.Second))
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = cfg.HTTPClient

	cbSettings := gobreaker.Settings{
		Name:        "openai-embeddings",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// malformed output is our problem to report, not a provider outage
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.HasCode(err, apperr.CodeEmbeddingInvalid)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).Warn("circuit breaker state changed from %s to %s", from.String(), to.String())
		},
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   cfg.MaxBatch,
		cb:         gobreaker.NewCircuitBreaker(cbSettings),
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }
func (e *OpenAIEmbedder) MaxBatch() int   { return e.maxBatch }

// Embed sends texts in a single request. Callers batch; this never splits.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	if len(texts) == 0 {
		return &EmbeddingResult{Model: e.model}, nil
	}
	if len(texts) > e.maxBatch {
		return nil, apperr.InvalidInput("texts", fmt.Sprintf("%d items exceeds batch ceiling %d", len(texts), e.maxBatch)).
			WithError(ErrBatchTooLarge)
	}

	out, err := e.cb.Execute(func() (interface{}, error) {
		req := openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		}
		// only the v3 family accepts a dimensions override
		if strings.HasPrefix(e.model, "text-embedding-3") {
			req.Dimensions = e.dimensions
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, apperr.EmbeddingFailed(err).WithDetail("model", e.model)
		}
		return e.validate(resp, len(texts))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.EmbeddingFailed(err).WithDetail("model", e.model)
		}
		return nil, err
	}
	return out.(*EmbeddingResult), nil
}

// validate checks count, index coverage and width, and returns vectors
// ordered by their input index.
func (e *OpenAIEmbedder) validate(resp openai.EmbeddingResponse, want int) (*EmbeddingResult, error) {
	if len(resp.Data) != want {
		return nil, apperr.EmbeddingInvalid(fmt.Sprintf("expected %d vectors, got %d", want, len(resp.Data)))
	}

	vectors := make([][]float32, want)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= want || vectors[d.Index] != nil {
			return nil, apperr.EmbeddingInvalid(fmt.Sprintf("unexpected vector index %d", d.Index))
		}
		if len(d.Embedding) != e.dimensions {
			return nil, apperr.EmbeddingInvalid(fmt.Sprintf("vector %d has dimension %d, want %d", d.Index, len(d.Embedding), e.dimensions))
		}
		vectors[d.Index] = d.Embedding
	}

	model := string(resp.Model)
	if model == "" {
		model = e.model
	}
	return &EmbeddingResult{Model: model, Vectors: vectors}, nil
}

// EmbedOne embeds a single text with batch size 1.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	res, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(res.Vectors) != 1 || len(res.Vectors[0]) != e.Dimensions() {
		return nil, apperr.EmbeddingInvalid("expected exactly one vector")
	}
	return res.Vectors[0], nil
}
