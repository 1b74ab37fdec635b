package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"assist_server/core/domain"
	"assist_server/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectTenantScope(mock sqlmock.Sqlmock, tenantID uuid.UUID) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`set_config('app.tenant_id', $1, true)`)).
		WithArgs(tenantID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestGetDocument_RunsInTenantScope(t *testing.T) {
	db, mock := newMockDB(t)
	tenant, id := uuid.New(), uuid.New()
	now := time.Now().UTC()

	expectTenantScope(mock, tenant)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE tenant_id = $1 AND id = $2`)).
		WithArgs(tenant.String(), id.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "title", "filename", "mime_type", "current_version_id", "created_at", "updated_at",
		}).AddRow(id.String(), tenant.String(), "Refunds", "refunds.md", "text/markdown", nil, now, now))
	mock.ExpectCommit()

	doc, err := NewDocumentAdapter(db).GetDocument(context.Background(), tenant, id)
	require.NoError(t, err)
	assert.Equal(t, "Refunds", doc.Title)
	assert.Nil(t, doc.CurrentVersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_NotFoundRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	tenant := uuid.New()

	expectTenantScope(mock, tenant)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := NewDocumentAdapter(db).GetDocument(context.Background(), tenant, uuid.New())
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTenant_RequiresTenant(t *testing.T) {
	db, mock := newMockDB(t)

	_, err := NewDocumentAdapter(db).GetDocument(context.Background(), uuid.Nil, uuid.New())
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingField))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkVersionReady(t *testing.T) {
	tests := []struct {
		name     string
		moved    int64
		promoted bool
	}{
		{name: "newer version becomes current", moved: 1, promoted: true},
		{name: "higher version already current", moved: 0, promoted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tenant, docID, versionID := uuid.New(), uuid.New(), uuid.New()

			expectTenantScope(mock, tenant)
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE document_versions SET`)).
				WithArgs(tenant.String(), docID.String(), versionID.String(), 7, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
				WillReturnRows(sqlmock.NewRows([]string{"current_version_id"}).AddRow(uuid.New().String()))
			mock.ExpectExec(regexp.QuoteMeta(`v.version_number > (`)).
				WithArgs(tenant.String(), docID.String(), versionID.String()).
				WillReturnResult(sqlmock.NewResult(0, tt.moved))
			mock.ExpectCommit()

			promoted, err := NewDocumentAdapter(db).MarkVersionReady(context.Background(), tenant, docID, versionID, 7, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.promoted, promoted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMarkVersionReady_UnknownVersionRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	tenant := uuid.New()

	expectTenantScope(mock, tenant)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE document_versions SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := NewDocumentAdapter(db).MarkVersionReady(context.Background(), tenant, uuid.New(), uuid.New(), 1, time.Now())
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanonicalCreate_WritesEmbeddingWithRow(t *testing.T) {
	db, mock := newMockDB(t)
	qa := &domain.CanonicalQA{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Question: "Refund window?",
		Answer:   "30 days.",
		Status:   domain.CanonicalQAStatusDraft,
	}
	now := time.Now().UTC()

	expectTenantScope(mock, qa.TenantID)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO canonical_qa`)).
		WithArgs(qa.ID.String(), qa.TenantID.String(), nil, nil, qa.Question, qa.Answer, "DRAFT", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	require.NoError(t, NewCanonicalQAAdapter(db).Create(context.Background(), qa, []float32{0.1, 0.2}))
	assert.Equal(t, now, qa.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanonicalCreate_FailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	qa := &domain.CanonicalQA{ID: uuid.New(), TenantID: uuid.New(), Question: "q", Answer: "a", Status: domain.CanonicalQAStatusDraft}

	expectTenantScope(mock, qa.TenantID)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO canonical_qa`)).
		WillReturnError(errors.New("vector dimension mismatch"))
	mock.ExpectRollback()

	err := NewCanonicalQAAdapter(db).Create(context.Background(), qa, []float32{0.1})
	assert.True(t, apperr.HasCode(err, apperr.CodeDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanonicalCreate_RequiresEmbedding(t *testing.T) {
	db, mock := newMockDB(t)
	qa := &domain.CanonicalQA{ID: uuid.New(), TenantID: uuid.New(), Question: "q", Answer: "a"}

	err := NewCanonicalQAAdapter(db).Create(context.Background(), qa, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingField))
	assert.NoError(t, mock.ExpectationsWereMet())
}
