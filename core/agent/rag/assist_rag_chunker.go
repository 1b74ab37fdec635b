// Package rag implements document chunking, embedding, indexing and
// citation-backed retrieval.
package rag

import (
	"slices"
	"sort"
	"strings"

	"assist_server/core/domain"
)

// ChunkerConfig sizes the chunking window in approximate tokens.
type ChunkerConfig struct {
	TargetTokens  int
	OverlapTokens int
	CharsPerToken int
}

// DefaultChunkerConfig returns 800-token windows with 100 tokens of overlap.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetTokens:  800,
		OverlapTokens: 100,
		CharsPerToken: 4,
	}
}

// Chunker splits normalized text into overlapping, paragraph-aligned windows.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	targetChars  int
	overlapChars int
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	def := DefaultChunkerConfig()
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = def.TargetTokens
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = def.CharsPerToken
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	return &Chunker{
		targetChars:  cfg.TargetTokens * cfg.CharsPerToken,
		overlapChars: cfg.OverlapTokens * cfg.CharsPerToken,
	}
}

// Chunk returns every chunk of text in order.
func (c *Chunker) Chunk(text string) []domain.Chunk {
	var chunks []domain.Chunk
	c.Each(text, func(ch domain.Chunk) bool {
		chunks = append(chunks, ch)
		return true
	})
	return chunks
}

// Each produces chunks lazily, stopping early when fn returns false.
//
// Sizes and offsets count characters (runes), not bytes. A window ends at
// the largest paragraph boundary that fits in the target size, or at the
// target size itself when no boundary fits. The next window starts
// overlapChars before the previous end, but always advances.
func (c *Chunker) Each(text string, fn func(domain.Chunk) bool) {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return
	}

	bounds := paragraphBoundaries(runes)
	start, index := 0, 0

	for {
		end := min(n, start+c.targetChars)
		// largest boundary b with start < b <= end
		if i := sort.SearchInts(bounds, end+1) - 1; i >= 0 && bounds[i] > start {
			end = bounds[i]
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			ch := domain.Chunk{
				Index:       index,
				StartOffset: start,
				EndOffset:   end,
				Content:     content,
				ContentHash: domain.HashContent(content),
			}
			if !fn(ch) {
				return
			}
			index++
		}

		if end >= n {
			return
		}

		next := max(0, end-c.overlapChars)
		if next <= start {
			next = end
		}
		start = next
	}
}

// paragraphBoundaries returns 0, every rune offset following "\n\n", and
// len(runes), sorted and deduplicated.
func paragraphBoundaries(runes []rune) []int {
	bounds := []int{0}
	for i := 0; i+1 < len(runes); i++ {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			bounds = append(bounds, i+2)
		}
	}
	bounds = append(bounds, len(runes))
	slices.Sort(bounds)
	return slices.Compact(bounds)
}
