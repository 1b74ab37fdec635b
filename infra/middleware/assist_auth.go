package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"assist_server/pkg/apperr"
	"assist_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenBlacklist manages revoked tokens
type TokenBlacklist struct {
	redis  *redis.Client
	prefix string
}

func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	if client == nil {
		return nil
	}
	return &TokenBlacklist{redis: client, prefix: "token:blacklist:"}
}

// Revoke adds a token id to the blacklist until it would expire anyway.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if b == nil {
		return nil
	}
	return b.redis.Set(ctx, b.prefix+tokenID, "1", expiry).Err()
}

// IsRevoked fails open on Redis errors.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if b == nil {
		return false
	}
	exists, err := b.redis.Exists(ctx, b.prefix+tokenID).Result()
	if err != nil {
		logger.WithError(err).Warn("token blacklist lookup failed")
		return false
	}
	return exists > 0
}

// Claims carries the tenant scope of an API token. Subject is the user.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Secret    string
	Blacklist *TokenBlacklist
}

// JWTAuth validates HS256 bearer tokens and stores tenant_id and user_id
// (uuid.UUID) in locals. Every request is tenant-scoped, so a token
// without tenant_id is rejected.
func JWTAuth(cfg AuthConfig) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
	)
	keyFunc := func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		var claims Claims
		token, err := parser.ParseWithClaims(tokenString, &claims, keyFunc)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return apperr.New(apperr.CodeTokenExpired, "token expired", fiber.StatusUnauthorized)
			}
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken("invalid token")
		}
		if !token.Valid {
			return apperr.InvalidToken("invalid token")
		}

		if claims.ID != "" && cfg.Blacklist.IsRevoked(c.Context(), claims.ID) {
			return apperr.InvalidToken("token has been revoked")
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil || tenantID == uuid.Nil {
			return apperr.InvalidToken("missing tenant in token")
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return apperr.InvalidToken("invalid user id format")
		}

		c.Locals("tenant_id", tenantID)
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
