package http

import (
	"fmt"
	"io"
	"strings"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// DocumentHandler handles document upload and indexing status.
type DocumentHandler struct {
	service        in.DocumentService
	maxUploadBytes int64
}

func NewDocumentHandler(service in.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{service: service, maxUploadBytes: maxUploadBytes}
}

func (h *DocumentHandler) Register(router fiber.Router) {
	docs := router.Group("/documents")
	docs.Post("/", h.Upload)
	docs.Get("/", h.List)
	docs.Get("/:id", h.Get)
	docs.Post("/:id/reindex", h.Reindex)
}

type DocumentVersionResponse struct {
	ID            uuid.UUID  `json:"id"`
	VersionNumber int        `json:"version_number"`
	Status        string     `json:"status"`
	ContentHash   string     `json:"content_hash"`
	SizeBytes     int64      `json:"size_bytes"`
	MimeType      string     `json:"mime_type"`
	ChunkCount    int        `json:"chunk_count"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	IndexedAt     *time.Time `json:"indexed_at,omitempty"`
}

type DocumentResponse struct {
	ID               uuid.UUID                `json:"id"`
	Title            string                   `json:"title"`
	Filename         string                   `json:"filename"`
	MimeType         string                   `json:"mime_type"`
	CurrentVersionID *uuid.UUID               `json:"current_version_id,omitempty"`
	LatestVersion    *DocumentVersionResponse `json:"latest_version,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func toVersionResponse(v *domain.DocumentVersion) *DocumentVersionResponse {
	if v == nil {
		return nil
	}
	return &DocumentVersionResponse{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		Status:        string(v.Status),
		ContentHash:   v.ContentHash,
		SizeBytes:     v.SizeBytes,
		MimeType:      v.MimeType,
		ChunkCount:    v.ChunkCount,
		Error:         v.Error,
		CreatedAt:     v.CreatedAt,
		IndexedAt:     v.IndexedAt,
	}
}

func toDocumentResponse(d *domain.DocumentWithVersion) *DocumentResponse {
	return &DocumentResponse{
		ID:               d.ID,
		Title:            d.Title,
		Filename:         d.Filename,
		MimeType:         d.MimeType,
		CurrentVersionID: d.CurrentVersionID,
		LatestVersion:    toVersionResponse(d.Version),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// Upload accepts multipart form field "file" plus optional "title" and
// "document_id". Indexing runs in the background; the response is 202.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.MissingField("file")
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return apperr.InvalidInput("file", fmt.Sprintf("larger than %d bytes", h.maxUploadBytes))
	}
	documentID, err := optionalUUID("document_id", c.FormValue("document_id"))
	if err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.BadRequest("unreadable upload").WithError(err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return apperr.BadRequest("unreadable upload").WithError(err)
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		title = fh.Filename
	}

	doc, err := h.service.Upload(c.Context(), &in.UploadDocumentRequest{
		TenantID:   tenantID,
		DocumentID: documentID,
		Title:      title,
		Filename:   fh.Filename,
		MimeType:   fh.Header.Get(fiber.HeaderContentType),
		Data:       data,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	page := GetPaginationParams(c, 20)
	filter := &domain.DocumentFilter{TenantID: tenantID, Limit: page.Limit, Offset: page.Offset}
	// status=READY,FAILED
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status := domain.DocumentStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return apperr.InvalidInput("status", "unknown document status")
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	result, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	docs := make([]*DocumentResponse, len(result.Documents))
	for i, d := range result.Documents {
		docs[i] = toDocumentResponse(d)
	}
	return c.JSON(NewListResponse(docs, result.Total, page))
}

func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	doc, err := h.service.Get(c.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) Reindex(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	version, err := h.service.Reindex(c.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(toVersionResponse(version))
}
