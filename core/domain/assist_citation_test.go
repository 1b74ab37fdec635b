package domain

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSources() []RetrievalSource {
	docID := uuid.New()
	return []RetrievalSource{
		&CanonicalQASource{
			CanonicalQAID: uuid.New(),
			DocumentID:    &docID,
			Question:      "What is the refund window?",
			Status:        CanonicalQAStatusApproved,
			Score:         0.93,
			Excerpt:       "Refunds are accepted within 30 days.",
			Answer:        "Refunds are accepted within 30 days of purchase.",
		},
		&DocChunkSource{
			TenantID:    uuid.New(),
			DocumentID:  docID,
			VersionID:   uuid.New(),
			ChunkID:     uuid.New(),
			ChunkIndex:  2,
			StartOffset: 6400,
			EndOffset:   9600,
			ContentHash: HashContent("policy text"),
			Score:       0.81,
			Excerpt:     "policy text",
			Content:     "policy text",
		},
	}
}

func TestDecideReason(t *testing.T) {
	approved := &CanonicalQASource{Status: CanonicalQAStatusApproved, Score: 0.9}
	draft := &CanonicalQASource{Status: CanonicalQAStatusDraft, Score: 0.9}
	chunk := &DocChunkSource{Score: 0.8}

	tests := []struct {
		name    string
		sources []RetrievalSource
		want    CitationReason
	}{
		{"no sources", nil, ReasonDocChunks},
		{"approved canonical on top", []RetrievalSource{approved, chunk}, ReasonCanonicalQA},
		{"draft canonical on top", []RetrievalSource{draft, chunk}, ReasonDocChunks},
		{"chunk on top", []RetrievalSource{chunk, approved}, ReasonDocChunks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideReason(tt.sources))
		})
	}
}

func TestNewCitationPayload_EmptySources(t *testing.T) {
	p := NewCitationPayload("anything", nil)

	assert.Equal(t, CitationPayloadVersion, p.Version)
	assert.Equal(t, ReasonDocChunks, p.Reason)
	require.NotNil(t, p.Sources)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sources":[]`)
}

func TestAuditSafe_StripsContentAndAnswer(t *testing.T) {
	p := NewCitationPayload("refund window", sampleSources())
	require.False(t, p.IsAuditSafe())

	safe := p.AuditSafe()
	assert.True(t, safe.IsAuditSafe())
	assert.Equal(t, p.Reason, safe.Reason)
	assert.Len(t, safe.Sources, 2)

	data, err := json.Marshal(safe)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"content"`)
	assert.NotContains(t, string(data), `"answer"`)
	assert.Contains(t, string(data), `"excerpt"`)

	// original is untouched
	assert.Equal(t, "policy text", p.Sources[1].(*DocChunkSource).Content)
	assert.NotEmpty(t, p.Sources[0].(*CanonicalQASource).Answer)
}

func TestCitationPayload_JSONRoundTrip(t *testing.T) {
	p := NewCitationPayload("refund window", sampleSources())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"canonical_qa"`)
	assert.Contains(t, string(data), `"type":"doc_chunk"`)
	assert.NotContains(t, string(data), `"version_id":null`)

	decoded, err := ParseCitationPayload(data)
	require.NoError(t, err)
	require.Len(t, decoded.Sources, 2)
	assert.Equal(t, p.Sources[0], decoded.Sources[0])
	assert.Equal(t, p.Sources[1], decoded.Sources[1])
	assert.Equal(t, ReasonCanonicalQA, decoded.Reason)
}

func TestParseCitationPayload_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"unknown version", `{"version":"citation_payload.v2","query":"q","reason":"doc_chunks","sources":[]}`, ErrUnsupportedPayloadVersion},
		{"missing version", `{"query":"q","reason":"doc_chunks","sources":[]}`, ErrUnsupportedPayloadVersion},
		{"bad reason", `{"version":"citation_payload.v1","query":"q","reason":"guess","sources":[]}`, ErrInvalidReason},
		{"unknown source", `{"version":"citation_payload.v1","query":"q","reason":"doc_chunks","sources":[{"type":"email"}]}`, ErrUnknownSourceType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCitationPayload([]byte(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewAuditRecord_Redacts(t *testing.T) {
	p := NewCitationPayload("refund window", sampleSources())
	rec := NewAuditRecord(uuid.New(), nil, AuditActionRetrievalQuery, p)

	assert.True(t, rec.Payload.IsAuditSafe())
	assert.False(t, p.IsAuditSafe())
	assert.False(t, strings.Contains(rec.Payload.Sources[1].(*DocChunkSource).Content, "policy"))
}

func TestHashContent(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashContent(""))
	assert.Len(t, HashContent("abc"), 64)
}
