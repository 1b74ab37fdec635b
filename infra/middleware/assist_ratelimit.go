package middleware

import (
	"math"
	"strconv"
	"time"

	"assist_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimit limits requests per tenant, falling back to the client IP
// before authentication.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if tenantID, ok := c.Locals("tenant_id").(uuid.UUID); ok {
			key = "tenant:" + tenantID.String()
		}

		d := limiter.Allow(c.UserContext(), key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.RetryAfter).Unix(), 10))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
