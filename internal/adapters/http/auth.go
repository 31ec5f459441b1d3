package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/environmenttech/wastewatch/internal/pkg/auth"
)

const (
	claimsKey    = "claims"
	claimsCtxKey = ctxKey("claims")
)

// RequireAuth verifies the bearer token and stores its claims on the request.
// WebSocket upgrades may pass the token as the access_token query parameter.
func RequireAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc == nil {
			return errUnavailable(c, "authentication not configured")
		}

		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			if q := strings.TrimSpace(c.Query("access_token")); q != "" && strings.HasPrefix(c.Path(), "/ws") {
				token, err = q, nil
			}
		}
		if err != nil {
			return errUnauthorized(c, "missing bearer token")
		}

		claims, err := svc.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return errUnauthorized(c, "token expired")
			}
			return errUnauthorized(c, "invalid token")
		}

		c.Locals(claimsKey, claims)
		c.SetUserContext(context.WithValue(c.UserContext(), claimsCtxKey, claims))
		return c.Next()
	}
}

// RequireRole rejects callers whose verified role is not in roles.
func RequireRole(roles ...auth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)
		if claims == nil {
			return errUnauthorized(c, "authentication required")
		}
		if !claims.HasRole(roles...) {
			return errForbidden(c, "role "+string(claims.Role)+" may not access this resource")
		}
		return c.Next()
	}
}

func claimsFrom(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}

// ClaimsFromCtx returns the verified caller of a request context, or nil.
func ClaimsFromCtx(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsCtxKey).(*auth.Claims)
	return claims
}
