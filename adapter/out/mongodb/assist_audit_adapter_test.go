package mongodb

import (
	"testing"

	"assist_server/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestToAuditDocument_Redacted(t *testing.T) {
	tenant := uuid.New()
	user := uuid.New()
	payload := domain.NewCitationPayload("refund window", []domain.RetrievalSource{
		&domain.CanonicalQASource{
			CanonicalQAID: uuid.New(),
			Question:      "How long is the refund window?",
			Answer:        "Refunds are accepted within thirty days.",
			Excerpt:       "Refunds are accepted…",
			Status:        domain.CanonicalQAStatusApproved,
			Score:         0.91,
		},
	})

	rec := domain.NewAuditRecord(tenant, &user, domain.AuditActionRetrievalQuery, payload)
	doc, err := toAuditDocument(rec)
	require.NoError(t, err)

	assert.Equal(t, tenant.String(), doc.TenantID)
	assert.Equal(t, user.String(), doc.UserID)
	assert.Equal(t, string(domain.ReasonCanonicalQA), doc.Reason)
	assert.Equal(t, 1, doc.SourceCount)

	raw, err := bson.MarshalExtJSON(doc.Payload, false, false)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "canonical_qa_id")
	assert.NotContains(t, string(raw), `"answer"`)
	assert.NotContains(t, string(raw), "within thirty days")
}

func TestToAuditDocument_RejectsFullPayload(t *testing.T) {
	payload := domain.NewCitationPayload("q", []domain.RetrievalSource{
		&domain.DocChunkSource{ChunkID: uuid.New(), Content: "secret body", Score: 0.5},
	})
	rec := &domain.AuditRecord{ID: uuid.New(), TenantID: uuid.New(), Payload: payload}

	_, err := toAuditDocument(rec)
	assert.Error(t, err)
}
