package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// CitationPayloadVersion is the only payload version this build reads or writes.
const CitationPayloadVersion = "citation_payload.v1"

var (
	ErrUnsupportedPayloadVersion = errors.New("unsupported citation payload version")
	ErrUnknownSourceType         = errors.New("unknown retrieval source type")
	ErrInvalidReason             = errors.New("invalid citation reason")
)

// SourceType tags the RetrievalSource variants on the wire.
type SourceType string

const (
	SourceTypeDocChunk    SourceType = "doc_chunk"
	SourceTypeCanonicalQA SourceType = "canonical_qa"
)

// CitationReason records which kind of evidence drives the answer.
type CitationReason string

const (
	ReasonCanonicalQA CitationReason = "canonical_qa"
	ReasonDocChunks   CitationReason = "doc_chunks"
)

func (r CitationReason) Valid() bool {
	return r == ReasonCanonicalQA || r == ReasonDocChunks
}

// RetrievalSource is one ranked piece of evidence. The set of
// implementations is closed: *DocChunkSource and *CanonicalQASource.
type RetrievalSource interface {
	Type() SourceType
	Similarity() float64
	// Redacted returns a copy without chunk content or answer text.
	Redacted() RetrievalSource
	isRetrievalSource()
}

// DocChunkSource cites a chunk of a document version.
type DocChunkSource struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	DocumentID  uuid.UUID `json:"doc_id"`
	VersionID   uuid.UUID `json:"version_id"`
	ChunkID     uuid.UUID `json:"chunk_id"`
	ChunkIndex  int       `json:"chunk_index"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	ContentHash string    `json:"content_hash"`
	Score       float64   `json:"score"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content,omitempty"`
}

func (s *DocChunkSource) Type() SourceType    { return SourceTypeDocChunk }
func (s *DocChunkSource) Similarity() float64 { return s.Score }
func (s *DocChunkSource) isRetrievalSource()  {}

func (s *DocChunkSource) Redacted() RetrievalSource {
	c := *s
	c.Content = ""
	return &c
}

func (s *DocChunkSource) MarshalJSON() ([]byte, error) {
	type alias DocChunkSource
	return json.Marshal(struct {
		Type SourceType `json:"type"`
		*alias
	}{SourceTypeDocChunk, (*alias)(s)})
}

// CanonicalQASource cites a curated question/answer entry.
type CanonicalQASource struct {
	CanonicalQAID uuid.UUID         `json:"canonical_qa_id"`
	DocumentID    *uuid.UUID        `json:"doc_id,omitempty"`
	VersionID     *uuid.UUID        `json:"version_id,omitempty"`
	Question      string            `json:"question"`
	Status        CanonicalQAStatus `json:"status"`
	Score         float64           `json:"score"`
	Excerpt       string            `json:"excerpt"`
	Answer        string            `json:"answer,omitempty"`
}

func (s *CanonicalQASource) Type() SourceType    { return SourceTypeCanonicalQA }
func (s *CanonicalQASource) Similarity() float64 { return s.Score }
func (s *CanonicalQASource) isRetrievalSource()  {}

func (s *CanonicalQASource) Redacted() RetrievalSource {
	c := *s
	c.Answer = ""
	return &c
}

func (s *CanonicalQASource) MarshalJSON() ([]byte, error) {
	type alias CanonicalQASource
	return json.Marshal(struct {
		Type SourceType `json:"type"`
		*alias
	}{SourceTypeCanonicalQA, (*alias)(s)})
}

// CitationPayload is the versioned, ranked evidence bundle attached to a
// retrieval or draft. Sources are ordered best-first.
type CitationPayload struct {
	Version string            `json:"version"`
	Query   string            `json:"query"`
	Reason  CitationReason    `json:"reason"`
	Sources []RetrievalSource `json:"sources"`
}

// NewCitationPayload builds a payload for already ranked sources and
// derives the reason from the top-ranked one.
func NewCitationPayload(query string, sources []RetrievalSource) *CitationPayload {
	if sources == nil {
		sources = []RetrievalSource{}
	}
	return &CitationPayload{
		Version: CitationPayloadVersion,
		Query:   query,
		Reason:  DecideReason(sources),
		Sources: sources,
	}
}

// DecideReason returns ReasonCanonicalQA iff the first source is an
// approved canonical entry.
func DecideReason(ranked []RetrievalSource) CitationReason {
	if len(ranked) == 0 {
		return ReasonDocChunks
	}
	if qa, ok := ranked[0].(*CanonicalQASource); ok && qa.Status == CanonicalQAStatusApproved {
		return ReasonCanonicalQA
	}
	return ReasonDocChunks
}

// AuditSafe returns a copy with every chunk content and answer removed.
// It is the only form that may be written to audit storage.
func (p *CitationPayload) AuditSafe() *CitationPayload {
	sources := make([]RetrievalSource, len(p.Sources))
	for i, s := range p.Sources {
		sources[i] = s.Redacted()
	}
	return &CitationPayload{
		Version: p.Version,
		Query:   p.Query,
		Reason:  p.Reason,
		Sources: sources,
	}
}

// IsAuditSafe reports whether no source carries content or answer text.
func (p *CitationPayload) IsAuditSafe() bool {
	for _, s := range p.Sources {
		switch v := s.(type) {
		case *DocChunkSource:
			if v.Content != "" {
				return false
			}
		case *CanonicalQASource:
			if v.Answer != "" {
				return false
			}
		}
	}
	return true
}

func (p CitationPayload) MarshalJSON() ([]byte, error) {
	type alias CitationPayload
	out := alias(p)
	if out.Sources == nil {
		out.Sources = []RetrievalSource{}
	}
	return json.Marshal(out)
}

func (p *CitationPayload) UnmarshalJSON(data []byte) error {
	var wire struct {
		Version string            `json:"version"`
		Query   string            `json:"query"`
		Reason  CitationReason    `json:"reason"`
		Sources []json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Version != CitationPayloadVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedPayloadVersion, wire.Version)
	}
	if !wire.Reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, wire.Reason)
	}

	sources := make([]RetrievalSource, 0, len(wire.Sources))
	for i, raw := range wire.Sources {
		var tag struct {
			Type SourceType `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}

		var src RetrievalSource
		switch tag.Type {
		case SourceTypeDocChunk:
			src = &DocChunkSource{}
		case SourceTypeCanonicalQA:
			src = &CanonicalQASource{}
		default:
			return fmt.Errorf("source %d: %w: %q", i, ErrUnknownSourceType, tag.Type)
		}
		if err := json.Unmarshal(raw, src); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		sources = append(sources, src)
	}

	*p = CitationPayload{
		Version: wire.Version,
		Query:   wire.Query,
		Reason:  wire.Reason,
		Sources: sources,
	}
	return nil
}

// ParseCitationPayload decodes a stored payload, rejecting unknown versions.
func ParseCitationPayload(data []byte) (*CitationPayload, error) {
	var p CitationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
