package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"assist_server/pkg/logger"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// EmbeddingCache is an in-process TTL cache of vectors keyed by model and text.
type EmbeddingCache struct {
	cache   map[string]*cachedEmbedding
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration

	hits   int64
	misses int64
}

type cachedEmbedding struct {
	embedding []float32
	createdAt time.Time
}

// EmbeddingCacheConfig configures the embedding cache.
type EmbeddingCacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

func DefaultEmbeddingCacheConfig() EmbeddingCacheConfig {
	return EmbeddingCacheConfig{
		MaxSize: 10000,
		TTL:     24 * time.Hour,
	}
}

func NewEmbeddingCache(cfg EmbeddingCacheConfig) *EmbeddingCache {
	def := DefaultEmbeddingCacheConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &EmbeddingCache{
		cache:   make(map[string]*cachedEmbedding),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
	}
}

// Get retrieves an embedding from cache.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		delete(c.cache, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.embedding, true
}

// Set stores an embedding in cache.
func (c *EmbeddingCache) Set(key string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxSize {
		c.evictOldest()
	}
	c.cache[key] = &cachedEmbedding{
		embedding: embedding,
		createdAt: time.Now(),
	}
}

// Stats returns cache statistics.
func (c *EmbeddingCache) Stats() (hits, misses int64, hitRate float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits = c.hits
	misses = c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Len returns the number of live and expired entries still held.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *EmbeddingCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.cache {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}

// RemoteVectorCache is a shared second-level cache, e.g. pkg/cache.RedisCache.
type RemoteVectorCache interface {
	GetMulti(ctx context.Context, keys []string) (map[string]string, error)
	SetMulti(ctx context.Context, items map[string]string, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from the local cache, then the
// remote cache, and sends only the remaining misses upstream in one call.
type CachedEmbedder struct {
	Embedder
	local     *EmbeddingCache
	remote    RemoteVectorCache
	remoteTTL time.Duration
	model     string
	inflight  singleflight.Group
}

// NewCachedEmbedder wraps next. remote may be nil.
func NewCachedEmbedder(next Embedder, model string, local *EmbeddingCache, remote RemoteVectorCache, remoteTTL time.Duration) *CachedEmbedder {
	if local == nil {
		local = NewEmbeddingCache(DefaultEmbeddingCacheConfig())
	}
	return &CachedEmbedder{
		Embedder:  next,
		local:     local,
		remote:    remote,
		remoteTTL: remoteTTL,
		model:     model,
	}
}

func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + e.model + ":" + hex.EncodeToString(sum[:16])
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int

	for i, text := range texts {
		keys[i] = e.cacheKey(text)
		if v, ok := e.local.Get(keys[i]); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 && e.remote != nil {
		missing = e.fillFromRemote(ctx, keys, missing, vectors)
	}

	if len(missing) > 0 {
		uncached := make([]string, len(missing))
		for j, i := range missing {
			uncached[j] = texts[i]
		}

		fresh, err := e.embedUpstream(ctx, uncached, keys[missing[0]])
		if err != nil {
			return nil, err
		}

		toRemote := make(map[string]string, len(missing))
		for j, i := range missing {
			v := fresh[j]
			vectors[i] = v
			e.local.Set(keys[i], v)
			if e.remote != nil {
				if data, err := json.Marshal(v); err == nil {
					toRemote[keys[i]] = string(data)
				}
			}
		}
		if e.remote != nil {
			if err := e.remote.SetMulti(ctx, toRemote, e.remoteTTL); err != nil {
				logger.WithError(err).Warn("embedding cache write failed")
			}
		}
	}

	return &EmbeddingResult{Model: e.model, Vectors: vectors}, nil
}

// embedUpstream calls the wrapped embedder. Concurrent single-text misses
// for the same key share one upstream call.
func (e *CachedEmbedder) embedUpstream(ctx context.Context, texts []string, firstKey string) ([][]float32, error) {
	if len(texts) != 1 {
		res, err := e.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		return res.Vectors, nil
	}

	v, err, _ := e.inflight.Do(firstKey, func() (any, error) {
		res, err := e.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		return res.Vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

// fillFromRemote returns the indices still missing after the remote lookup.
// Remote failures degrade to a miss.
func (e *CachedEmbedder) fillFromRemote(ctx context.Context, keys []string, missing []int, vectors [][]float32) []int {
	lookup := make([]string, len(missing))
	for j, i := range missing {
		lookup[j] = keys[i]
	}

	found, err := e.remote.GetMulti(ctx, lookup)
	if err != nil {
		logger.WithError(err).Warn("embedding cache read failed")
		return missing
	}

	still := missing[:0]
	for _, i := range missing {
		raw, ok := found[keys[i]]
		if !ok {
			still = append(still, i)
			continue
		}
		var v []float32
		if err := json.Unmarshal([]byte(raw), &v); err != nil || len(v) != e.Dimensions() {
			still = append(still, i)
			continue
		}
		vectors[i] = v
		e.local.Set(keys[i], v)
	}
	return still
}
