package http

import (
	"assist_server/core/domain"
	"assist_server/core/port/in"

	"github.com/gofiber/fiber/v2"
)

// RetrievalHandler serves citation queries and grounded drafts.
//
// Responses carry the audit-safe payload unless the caller asks for
// ?include_content=true.
type RetrievalHandler struct {
	retrieval in.RetrievalService
	drafts    in.DraftService
}

func NewRetrievalHandler(retrieval in.RetrievalService, drafts in.DraftService) *RetrievalHandler {
	return &RetrievalHandler{retrieval: retrieval, drafts: drafts}
}

func (h *RetrievalHandler) Register(router fiber.Router) {
	router.Post("/retrieval/query", h.Query)
	if h.drafts != nil {
		router.Post("/drafts", h.Draft)
	}
}

type QueryBody struct {
	Query string   `json:"query"`
	TopK  *float64 `json:"top_k"`
}

type DraftBody struct {
	Query        string   `json:"query"`
	Instructions string   `json:"instructions"`
	TopK         *float64 `json:"top_k"`
}

func (h *RetrievalHandler) Query(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	var body QueryBody
	if err := parseBody(c, &body); err != nil {
		return err
	}

	payload, err := h.retrieval.Query(c.Context(), &in.QueryRequest{
		TenantID:  tenantID,
		UserID:    GetUserID(c),
		RequestID: GetRequestID(c),
		Query:     body.Query,
		TopK:      body.TopK,
	})
	if err != nil {
		return err
	}
	return c.JSON(responsePayload(c, payload))
}

func (h *RetrievalHandler) Draft(c *fiber.Ctx) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	var body DraftBody
	if err := parseBody(c, &body); err != nil {
		return err
	}

	result, err := h.drafts.Generate(c.Context(), &in.DraftRequest{
		TenantID:     tenantID,
		UserID:       GetUserID(c),
		RequestID:    GetRequestID(c),
		Query:        body.Query,
		Instructions: body.Instructions,
		TopK:         body.TopK,
	})
	if err != nil {
		return err
	}
	return c.JSON(in.DraftResult{
		Draft:   result.Draft,
		Model:   result.Model,
		Payload: responsePayload(c, result.Payload),
	})
}

func responsePayload(c *fiber.Ctx, payload *domain.CitationPayload) *domain.CitationPayload {
	if QueryBool(c, "include_content") {
		return payload
	}
	return payload.AuditSafe()
}
