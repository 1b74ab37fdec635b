package persistence

import (
	"database/sql"
	"testing"
	"time"

	"assist_server/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRow_ToEntity(t *testing.T) {
	now := time.Now().UTC()

	pending := (&versionRow{ID: uuid.New(), Status: "PENDING", CreatedAt: now}).toEntity()
	assert.Equal(t, domain.DocumentStatusPending, pending.Status)
	assert.Nil(t, pending.Error)
	assert.Nil(t, pending.IndexedAt)

	failed := (&versionRow{
		ID:        uuid.New(),
		Status:    "FAILED",
		Error:     sql.NullString{String: "UNSUPPORTED_TYPE: image/png", Valid: true},
		IndexedAt: sql.NullTime{Time: now, Valid: true},
	}).toEntity()
	require.NotNil(t, failed.Error)
	assert.Equal(t, "UNSUPPORTED_TYPE: image/png", *failed.Error)
	require.NotNil(t, failed.IndexedAt)
	assert.Equal(t, now, *failed.IndexedAt)
}

func TestDocumentRow_ToEntity(t *testing.T) {
	versionID := uuid.New()
	doc := (&documentRow{ID: uuid.New(), CurrentVersionID: uuid.NullUUID{UUID: versionID, Valid: true}}).toEntity()
	require.NotNil(t, doc.CurrentVersionID)
	assert.Equal(t, versionID, *doc.CurrentVersionID)

	assert.Nil(t, (&documentRow{ID: uuid.New()}).toEntity().CurrentVersionID)
}

func TestCanonicalRow_ToEntity(t *testing.T) {
	docID := uuid.New()
	qa := (&canonicalRow{
		ID:         uuid.New(),
		DocumentID: uuid.NullUUID{UUID: docID, Valid: true},
		Question:   "Refund window?",
		Answer:     "30 days.",
		Status:     "APPROVED",
	}).toEntity()

	assert.Equal(t, domain.CanonicalQAStatusApproved, qa.Status)
	require.NotNil(t, qa.DocumentID)
	assert.Equal(t, docID, *qa.DocumentID)
	assert.Nil(t, qa.VersionID)
	assert.Nil(t, qa.CreatedBy)
}
