package http

import (
	"errors"
	"strings"

	"assist_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// Locals keys set by the auth and request-id middleware.
const (
	LocalTenantID  = "tenant_id"
	LocalUserID    = "user_id"
	LocalRequestID = "request_id"
)

// GetTenantID extracts the authenticated tenant from the fiber context.
func GetTenantID(c *fiber.Ctx) (uuid.UUID, error) {
	tenantID, ok := c.Locals(LocalTenantID).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("missing tenant").WithError(ErrUnauthorized)
	}
	return tenantID, nil
}

// GetUserID returns nil for service tokens without a user subject.
func GetUserID(c *fiber.Ctx) *uuid.UUID {
	userID, ok := c.Locals(LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return nil
	}
	return &userID
}

func GetRequestID(c *fiber.Ctx) string {
	requestID, _ := c.Locals(LocalRequestID).(string)
	return requestID
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput(name, "must be a UUID")
	}
	return id, nil
}

// optionalUUID parses a possibly empty UUID string.
func optionalUUID(field, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.InvalidInput(field, "must be a UUID")
	}
	return &id, nil
}

// parseBody decodes a JSON body. Malformed JSON, including a wrongly
// typed field, is a validation failure.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.ValidationFailed("invalid request body").WithError(err)
	}
	return nil
}

// PaginationParams holds common pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// GetPaginationParams extracts pagination params from query
func GetPaginationParams(c *fiber.Ctx, defaultLimit int) PaginationParams {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}
}

// QueryBool parses a boolean query parameter
func QueryBool(c *fiber.Ctx, key string) bool {
	val := c.Query(key)
	return val == "true" || val == "1"
}

// ListResponse represents a paginated list response
type ListResponse struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
}

func NewListResponse(data any, total int, page PaginationParams) ListResponse {
	return ListResponse{
		Data:    data,
		Total:   total,
		HasMore: page.Offset+page.Limit < total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
}
