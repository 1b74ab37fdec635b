package http

import (
	"strings"
	"time"

	"assist_server/core/domain"
	"assist_server/core/port/in"
	"assist_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CanonicalQAHandler handles curated Q&A entries
type CanonicalQAHandler struct {
	service in.CanonicalQAService
}

func NewCanonicalQAHandler(service in.CanonicalQAService) *CanonicalQAHandler {
	return &CanonicalQAHandler{service: service}
}

func (h *CanonicalQAHandler) Register(router fiber.Router) {
	qa := router.Group("/canonical-qa")
	qa.Post("/", h.Create)
	qa.Get("/", h.List)
	qa.Get("/:id", h.Get)
	qa.Put("/:id", h.Update)
	qa.Post("/:id/approve", h.Approve)
	qa.Post("/:id/archive", h.Archive)
}

type CanonicalQAResponse struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Status     string     `json:"status"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	VersionID  *uuid.UUID `json:"version_id,omitempty"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toCanonicalQAResponse(q *domain.CanonicalQA) *CanonicalQAResponse {
	return &CanonicalQAResponse{
		ID:         q.ID,
		Question:   q.Question,
		Answer:     q.Answer,
		Status:     string(q.Status),
		DocumentID: q.DocumentID,
		VersionID:  q.VersionID,
		CreatedBy:  q.CreatedBy,
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}
}

type CanonicalQABody struct {
	Question   *string `json:"question"`
	Answer     *string `json:"answer"`
	DocumentID string  `json:"document_id"`
	VersionID  string  `json:"version_id"`
}

func (b *CanonicalQABody) refs() (documentID, versionID *uuid.UUID, err error) {
	if documentID, err = optionalUUID("document_id", b.DocumentID); err != nil {
		return nil, nil, err
	}
	if versionID, err = optionalUUID("version_id", b.VersionID); err != nil {
		return nil, nil, err
	}
	return documentID, versionID, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *CanonicalQAHandler) Create(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	var body CanonicalQABody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	documentID, versionID, err := body.refs()
	if err != nil {
		return err
	}

	entry, err := h.service.Create(c.Context(), &in.CreateCanonicalQARequest{
		TenantID:   tenantID,
		CreatedBy:  GetUserID(c),
		DocumentID: documentID,
		VersionID:  versionID,
		Question:   deref(body.Question),
		Answer:     deref(body.Answer),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toCanonicalQAResponse(entry))
}

func (h *CanonicalQAHandler) List(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	page := GetPaginationParams(c, 20)
	filter := &domain.CanonicalQAFilter{TenantID: tenantID, Limit: page.Limit, Offset: page.Offset}
	if raw := c.Query("status"); raw != "" {
		status := domain.CanonicalQAStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return apperr.InvalidInput("status", "unknown canonical Q&A status")
		}
		filter.Status = &status
	}

	result, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	entries := make([]*CanonicalQAResponse, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = toCanonicalQAResponse(e)
	}
	return c.JSON(NewListResponse(entries, result.Total, page))
}

func (h *CanonicalQAHandler) Get(c *fiber.Ctx) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	entry, err := h.service.Get(c.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(toCanonicalQAResponse(entry))
}

func (h *CanonicalQAHandler) Update(c *fiber.Ctx) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	var body CanonicalQABody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	documentID, versionID, err := body.refs()
	if err != nil {
		return err
	}

	entry, err := h.service.Update(c.Context(), &in.UpdateCanonicalQARequest{
		TenantID:   tenantID,
		ID:         id,
		Question:   body.Question,
		Answer:     body.Answer,
		DocumentID: documentID,
		VersionID:  versionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(toCanonicalQAResponse(entry))
}

func (h *CanonicalQAHandler) Approve(c *fiber.Ctx) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	entry, err := h.service.Approve(c.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(toCanonicalQAResponse(entry))
}

func (h *CanonicalQAHandler) Archive(c *fiber.Ctx) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	entry, err := h.service.Archive(c.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(toCanonicalQAResponse(entry))
}

func (h *CanonicalQAHandler) ids(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenantID, id, nil
}
