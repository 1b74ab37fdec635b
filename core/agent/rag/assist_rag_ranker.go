package rag

import (
	"math"
	"sort"

	"assist_server/core/domain"
)

// Ranker merges canonical and chunk candidates into one best-first list.
type Ranker struct{}

func NewRanker() *Ranker {
	return &Ranker{}
}

// Merge orders by score descending. Equal scores put approved canonical
// entries first, then other canonical entries, then chunks; remaining ties
// fall back to identifiers so the order is deterministic.
func (r *Ranker) Merge(canonical []*domain.CanonicalQASource, chunks []*domain.DocChunkSource) []domain.RetrievalSource {
	merged := make([]domain.RetrievalSource, 0, len(canonical)+len(chunks))
	for _, c := range canonical {
		merged = append(merged, c)
	}
	for _, c := range chunks {
		merged = append(merged, c)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return less(merged[i], merged[j])
	})
	return merged
}

func less(a, b domain.RetrievalSource) bool {
	sa, sb := sortScore(a.Similarity()), sortScore(b.Similarity())
	if sa != sb {
		return sa > sb
	}

	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra < rb
	}

	switch x := a.(type) {
	case *domain.CanonicalQASource:
		y := b.(*domain.CanonicalQASource)
		return x.CanonicalQAID.String() < y.CanonicalQAID.String()
	case *domain.DocChunkSource:
		y := b.(*domain.DocChunkSource)
		if x.DocumentID != y.DocumentID {
			return x.DocumentID.String() < y.DocumentID.String()
		}
		if x.VersionID != y.VersionID {
			return x.VersionID.String() < y.VersionID.String()
		}
		return x.ChunkIndex < y.ChunkIndex
	}
	return false
}

func sortScore(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}

func typeRank(s domain.RetrievalSource) int {
	if qa, ok := s.(*domain.CanonicalQASource); ok {
		if qa.Status == domain.CanonicalQAStatusApproved {
			return 0
		}
		return 1
	}
	return 2
}
