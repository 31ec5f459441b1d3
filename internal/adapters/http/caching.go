package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// cacheRule maps a path prefix to a default Cache-Control value. The first
// matching rule wins.
type cacheRule struct {
	prefix string
	exact  bool
	value  string
}

var cacheRules = []cacheRule{
	{prefix: "/v1/health", exact: true, value: "no-cache"},
	{prefix: "/v1/ready", exact: true, value: "no-cache"},
	{prefix: "/metrics", exact: true, value: "no-cache"},
	{prefix: "/docs", value: "public, max-age=3600"},
	{prefix: "/v1/collector/", value: "no-store"}, // positions and routes are ephemeral
	{prefix: "/v1/admin/", value: "private, max-age=60"},
	{prefix: "/v1/reports", value: "private, max-age=15"},
	{prefix: "/v1/", value: "private, max-age=30"},
}

func cacheControlFor(path string) string {
	for _, r := range cacheRules {
		if (r.exact && path == r.prefix) || (!r.exact && strings.HasPrefix(path, r.prefix)) {
			return r.value
		}
	}
	return ""
}

// CachingMiddleware fills in Cache-Control on GET responses that did not set
// their own.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if c.Method() != fiber.MethodGet || c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return err
		}
		if v := cacheControlFor(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return err
	}
}
