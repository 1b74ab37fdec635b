package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/infra/middleware"
	"assist_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTenant = uuid.New()
	testUser   = uuid.New()
)

func newTestApp(register func(fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestID())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalTenantID, testTenant)
		c.Locals(LocalUserID, testUser)
		return c.Next()
	})
	register(app.Group("/api/v1"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

// --- retrieval ---

type fakeRetrieval struct {
	got *in.QueryRequest
	err error
}

func (f *fakeRetrieval) Query(_ context.Context, req *in.QueryRequest) (*domain.CitationPayload, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewCitationPayload(req.Query, []domain.RetrievalSource{
		&domain.CanonicalQASource{
			CanonicalQAID: uuid.New(),
			Question:      "Refund window?",
			Answer:        "30 days from delivery.",
			Status:        domain.CanonicalQAStatusApproved,
			Score:         0.9,
			Excerpt:       "30 days from delivery.",
		},
	}), nil
}

type fakeDrafts struct {
	got *in.DraftRequest
}

func (f *fakeDrafts) Generate(ctx context.Context, req *in.DraftRequest) (*in.DraftResult, error) {
	f.got = req
	payload, _ := (&fakeRetrieval{}).Query(ctx, &in.QueryRequest{Query: req.Query})
	return &in.DraftResult{Draft: "Refunds are accepted for 30 days [1].", Model: "gpt-test", Payload: payload}, nil
}

func TestRetrievalQuery_RedactsByDefault(t *testing.T) {
	svc := &fakeRetrieval{}
	app := newTestApp(NewRetrievalHandler(svc, nil).Register)

	status, body := doJSON(t, app, "POST", "/api/v1/retrieval/query", `{"query":"refund window","top_k":3}`)
	require.Equal(t, 200, status)

	assert.NotContains(t, string(body), `"answer"`)
	assert.Contains(t, string(body), `"reason":"canonical_qa"`)
	assert.Equal(t, testTenant, svc.got.TenantID)
	assert.Equal(t, &testUser, svc.got.UserID)
	require.NotNil(t, svc.got.TopK)
	assert.Equal(t, 3.0, *svc.got.TopK)
	assert.NotEmpty(t, svc.got.RequestID)
}

func TestRetrievalQuery_IncludeContent(t *testing.T) {
	app := newTestApp(NewRetrievalHandler(&fakeRetrieval{}, nil).Register)

	status, body := doJSON(t, app, "POST", "/api/v1/retrieval/query?include_content=true", `{"query":"refund window"}`)
	require.Equal(t, 200, status)

	var payload domain.CitationPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Sources, 1)
	assert.Equal(t, "30 days from delivery.", payload.Sources[0].(*domain.CanonicalQASource).Answer)
}

func TestRetrievalQuery_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code string
	}{
		{"malformed json", `{"query":`, nil, apperr.CodeValidationFailed},
		{"non-numeric top_k", `{"query":"x","top_k":"five"}`, nil, apperr.CodeValidationFailed},
		{"service rejects", `{"query":"   "}`, apperr.InvalidQuery("query is empty"), apperr.CodeInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(NewRetrievalHandler(&fakeRetrieval{err: tt.err}, nil).Register)
			status, body := doJSON(t, app, "POST", "/api/v1/retrieval/query", tt.body)
			assert.Equal(t, 400, status)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestDraft(t *testing.T) {
	drafts := &fakeDrafts{}
	app := newTestApp(NewRetrievalHandler(&fakeRetrieval{}, drafts).Register)

	status, body := doJSON(t, app, "POST", "/api/v1/drafts", `{"query":"refund?","instructions":"friendly"}`)
	require.Equal(t, 200, status)

	var result struct {
		Draft   string          `json:"draft"`
		Model   string          `json:"model"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "gpt-test", result.Model)
	assert.Contains(t, result.Draft, "[1]")
	assert.NotContains(t, string(result.Payload), `"answer"`)
	assert.Equal(t, "friendly", drafts.got.Instructions)
}

func TestMissingTenant(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	NewRetrievalHandler(&fakeRetrieval{}, nil).Register(app.Group("/api/v1"))

	status, body := doJSON(t, app, "POST", "/api/v1/retrieval/query", `{"query":"x"}`)
	assert.Equal(t, 401, status)
	assert.Equal(t, apperr.CodeUnauthorized, errorCode(t, body))
}

// --- documents ---

type fakeDocumentService struct {
	in.DocumentService
	upload *in.UploadDocumentRequest
	filter *domain.DocumentFilter
	getErr error
}

func sampleDocument(tenantID uuid.UUID) *domain.DocumentWithVersion {
	now := time.Now().UTC()
	docID := uuid.New()
	return &domain.DocumentWithVersion{
		Document: domain.Document{ID: docID, TenantID: tenantID, Title: "Handbook", Filename: "handbook.md", MimeType: "text/markdown", CreatedAt: now, UpdatedAt: now},
		Version: &domain.DocumentVersion{
			ID: uuid.New(), TenantID: tenantID, DocumentID: docID, VersionNumber: 1,
			Status: domain.DocumentStatusPending, MimeType: "text/markdown", CreatedAt: now,
		},
	}
}

func (f *fakeDocumentService) Upload(_ context.Context, req *in.UploadDocumentRequest) (*domain.DocumentWithVersion, error) {
	f.upload = req
	doc := sampleDocument(req.TenantID)
	doc.Title = req.Title
	return doc, nil
}

func (f *fakeDocumentService) List(_ context.Context, filter *domain.DocumentFilter) (*in.DocumentListResponse, error) {
	f.filter = filter
	return &in.DocumentListResponse{Documents: []*domain.DocumentWithVersion{sampleDocument(filter.TenantID)}, Total: 1}, nil
}

func (f *fakeDocumentService) Get(_ context.Context, tenantID, _ uuid.UUID) (*domain.DocumentWithVersion, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return sampleDocument(tenantID), nil
}

func (f *fakeDocumentService) Reindex(_ context.Context, tenantID, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	return &domain.DocumentVersion{ID: uuid.New(), TenantID: tenantID, DocumentID: documentID, VersionNumber: 2, Status: domain.DocumentStatusPending}, nil
}

func multipartUpload(t *testing.T, fields map[string]string, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestDocumentUpload(t *testing.T) {
	svc := &fakeDocumentService{}
	app := newTestApp(NewDocumentHandler(svc, 1<<20).Register)

	body, ct := multipartUpload(t, map[string]string{"title": "Returns"}, "returns.md", "text/markdown", []byte("# Returns\n\n30 days."))
	req := httptest.NewRequest("POST", "/api/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	require.NotNil(t, svc.upload)
	assert.Equal(t, testTenant, svc.upload.TenantID)
	assert.Equal(t, "Returns", svc.upload.Title)
	assert.Equal(t, "returns.md", svc.upload.Filename)
	assert.Equal(t, "text/markdown", svc.upload.MimeType)
	assert.Nil(t, svc.upload.DocumentID)

	var doc DocumentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "PENDING", doc.LatestVersion.Status)
}

func TestDocumentUpload_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		data     []byte
		status   int
		code     string
	}{
		{"missing file", nil, "", nil, 400, apperr.CodeMissingField},
		{"bad document id", map[string]string{"document_id": "nope"}, "a.txt", []byte("x"), 400, apperr.CodeInvalidInput},
		{"too large", nil, "a.txt", bytes.Repeat([]byte("x"), 2048), 400, apperr.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(NewDocumentHandler(&fakeDocumentService{}, 1024).Register)
			body, ct := multipartUpload(t, tt.fields, tt.filename, "text/plain", tt.data)
			req := httptest.NewRequest("POST", "/api/v1/documents", body)
			req.Header.Set("Content-Type", ct)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			data, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.code, errorCode(t, data))
		})
	}
}

func TestDocumentList(t *testing.T) {
	svc := &fakeDocumentService{}
	app := newTestApp(NewDocumentHandler(svc, 0).Register)

	status, body := doJSON(t, app, "GET", "/api/v1/documents?status=ready,failed&limit=5", "")
	require.Equal(t, 200, status)
	assert.Equal(t, []domain.DocumentStatus{domain.DocumentStatusReady, domain.DocumentStatusFailed}, svc.filter.Statuses)
	assert.Equal(t, 5, svc.filter.Limit)

	var list struct {
		Data  []DocumentResponse `json:"data"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Total)
	assert.Len(t, list.Data, 1)

	status, body = doJSON(t, app, "GET", "/api/v1/documents?status=bogus", "")
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeInvalidInput, errorCode(t, body))
}

func TestDocumentGet(t *testing.T) {
	app := newTestApp(NewDocumentHandler(&fakeDocumentService{getErr: apperr.NotFound("document")}, 0).Register)

	status, body := doJSON(t, app, "GET", "/api/v1/documents/"+uuid.NewString(), "")
	assert.Equal(t, 404, status)
	assert.Equal(t, apperr.CodeNotFound, errorCode(t, body))

	status, body = doJSON(t, app, "GET", "/api/v1/documents/not-a-uuid", "")
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeInvalidInput, errorCode(t, body))
}

func TestDocumentReindex(t *testing.T) {
	app := newTestApp(NewDocumentHandler(&fakeDocumentService{}, 0).Register)

	status, body := doJSON(t, app, "POST", "/api/v1/documents/"+uuid.NewString()+"/reindex", "")
	require.Equal(t, 202, status)
	var v DocumentVersionResponse
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, 2, v.VersionNumber)
}

// --- canonical Q&A ---

type fakeCanonicalService struct {
	in.CanonicalQAService
	created *in.CreateCanonicalQARequest
	updated *in.UpdateCanonicalQARequest
}

func entry(tenantID uuid.UUID, status domain.CanonicalQAStatus) *domain.CanonicalQA {
	now := time.Now().UTC()
	return &domain.CanonicalQA{ID: uuid.New(), TenantID: tenantID, Question: "Q?", Answer: "A.", Status: status, CreatedAt: now, UpdatedAt: now}
}

func (f *fakeCanonicalService) Create(_ context.Context, req *in.CreateCanonicalQARequest) (*domain.CanonicalQA, error) {
	f.created = req
	if strings.TrimSpace(req.Question) == "" {
		return nil, apperr.MissingField("question")
	}
	return entry(req.TenantID, domain.CanonicalQAStatusDraft), nil
}

func (f *fakeCanonicalService) Update(_ context.Context, req *in.UpdateCanonicalQARequest) (*domain.CanonicalQA, error) {
	f.updated = req
	return entry(req.TenantID, domain.CanonicalQAStatusDraft), nil
}

func (f *fakeCanonicalService) Approve(_ context.Context, tenantID, _ uuid.UUID) (*domain.CanonicalQA, error) {
	return entry(tenantID, domain.CanonicalQAStatusApproved), nil
}

func (f *fakeCanonicalService) Archive(_ context.Context, _, _ uuid.UUID) (*domain.CanonicalQA, error) {
	return nil, apperr.Conflict("entry is archived")
}

func TestCanonicalQA_Create(t *testing.T) {
	svc := &fakeCanonicalService{}
	app := newTestApp(NewCanonicalQAHandler(svc).Register)

	docID := uuid.New()
	status, body := doJSON(t, app, "POST", "/api/v1/canonical-qa", `{"question":"Q?","answer":"A.","document_id":"`+docID.String()+`"}`)
	require.Equal(t, 201, status)
	assert.Equal(t, &testUser, svc.created.CreatedBy)
	assert.Equal(t, &docID, svc.created.DocumentID)

	var resp CanonicalQAResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "DRAFT", resp.Status)

	status, body = doJSON(t, app, "POST", "/api/v1/canonical-qa", `{"answer":"A."}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeMissingField, errorCode(t, body))
}

func TestCanonicalQA_UpdatePartial(t *testing.T) {
	svc := &fakeCanonicalService{}
	app := newTestApp(NewCanonicalQAHandler(svc).Register)

	status, _ := doJSON(t, app, "PUT", "/api/v1/canonical-qa/"+uuid.NewString(), `{"answer":"New answer."}`)
	require.Equal(t, 200, status)
	assert.Nil(t, svc.updated.Question)
	require.NotNil(t, svc.updated.Answer)
	assert.Equal(t, "New answer.", *svc.updated.Answer)
}

func TestCanonicalQA_StatusTransitions(t *testing.T) {
	app := newTestApp(NewCanonicalQAHandler(&fakeCanonicalService{}).Register)
	id := uuid.NewString()

	status, body := doJSON(t, app, "POST", "/api/v1/canonical-qa/"+id+"/approve", "")
	require.Equal(t, 200, status)
	assert.Contains(t, string(body), `"status":"APPROVED"`)

	status, body = doJSON(t, app, "POST", "/api/v1/canonical-qa/"+id+"/archive", "")
	assert.Equal(t, 409, status)
	assert.Equal(t, apperr.CodeConflict, errorCode(t, body))
}

// --- health ---

func TestHealth(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(map[string]HealthChecker{
		"postgres": PingFunc(func(context.Context) error { return nil }),
	}, nil).
		WithStats("redis", func() any { return map[string]int{"idle_conns": 3} }).
		Register(app)

	status, body := doJSON(t, app, "GET", "/health", "")
	assert.Equal(t, 200, status)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.Contains(t, string(body), `"pools":{"redis":{"idle_conns":3}}`)

	status, _ = doJSON(t, app, "GET", "/ready", "")
	assert.Equal(t, 200, status)
}

func TestReady_Unhealthy(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(map[string]HealthChecker{
		"redis": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, nil).Register(app)

	status, body := doJSON(t, app, "GET", "/ready", "")
	assert.Equal(t, 503, status)
	assert.Contains(t, string(body), "connection refused")
}
