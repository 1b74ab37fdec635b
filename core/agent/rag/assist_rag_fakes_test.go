package rag

import (
	"context"
	"sync"
	"time"

	"assist_server/core/domain"

	"github.com/google/uuid"
)

const testDims = 8

// fakeEmbedder returns deterministic vectors and records every call.
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	maxBatch int
	calls    [][]string
	err      error
	// width overrides the returned vector width when non-zero
	width int
	// gate, when set, blocks every call until it is closed
	gate chan struct{}
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dims: testDims, maxBatch: 16}
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) (*EmbeddingResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	width := f.dims
	if f.width != 0 {
		width = f.width
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, width)
		for j := range v {
			v[j] = float32(len(t)+j) / 100
		}
		vectors[i] = v
	}
	return &EmbeddingResult{Model: "fake", Vectors: vectors}, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) MaxBatch() int   { return f.maxBatch }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeStore is an in-memory out.VectorStore keyed by tenant.
type fakeStore struct {
	mu        sync.Mutex
	chunks    map[uuid.UUID][]*domain.DocChunkSource
	canonical map[uuid.UUID][]*domain.CanonicalQASource
	replaced  map[uuid.UUID][]domain.StoredChunk
	limits    []int
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:    make(map[uuid.UUID][]*domain.DocChunkSource),
		canonical: make(map[uuid.UUID][]*domain.CanonicalQASource),
		replaced:  make(map[uuid.UUID][]domain.StoredChunk),
	}
}

func (s *fakeStore) SearchChunks(_ context.Context, tenantID uuid.UUID, _ []float32, limit int) ([]*domain.DocChunkSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	var out []*domain.DocChunkSource
	for _, c := range s.chunks[tenantID] {
		if len(out) == limit {
			break
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) SearchCanonical(_ context.Context, tenantID uuid.UUID, _ []float32, limit int) ([]*domain.CanonicalQASource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	var out []*domain.CanonicalQASource
	for _, c := range s.canonical[tenantID] {
		if len(out) == limit {
			break
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) ReplaceChunks(_ context.Context, _ uuid.UUID, versionID uuid.UUID, chunks []domain.StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replaced[versionID] = chunks
	return nil
}

// fakeRemote is an in-memory RemoteVectorCache.
type fakeRemote struct {
	mu    sync.Mutex
	items map[string]string
	gets  int
}

func (r *fakeRemote) GetMulti(_ context.Context, keys []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := r.items[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (r *fakeRemote) SetMulti(_ context.Context, items map[string]string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[string]string)
	}
	for k, v := range items {
		r.items[k] = v
	}
	return nil
}
