package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/environmenttech/wastewatch/internal/pkg/auth"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

const (
	handlerTimeout = 15 * time.Second
	// geolocation (15s) plus directions (10s) with headroom
	routeTimeout = 30 * time.Second
)

// RouterOptions tunes the HTTP surface.
type RouterOptions struct {
	CORSOrigins  string
	RateLimit    int
	OpenAPIPath  string
	DisableLimit bool
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, opts RouterOptions) {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}
	if opts.CORSOrigins == "" {
		opts.CORSOrigins = "*"
	}

	app.Use(recover.New())

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if !opts.DisableLimit {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no auth, no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	SetupDocs(app, opts.OpenAPIPath)

	authn := RequireAuth(deps.Auth)
	collector := RequireRole(auth.RoleCollector, auth.RoleAdmin)
	admin := RequireRole(auth.RoleAdmin)
	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, handlerTimeout) }

	v1 := app.Group("/v1", authn)

	v1.Post("/reports", with(CreateReportHandler(deps)))
	v1.Get("/reports", with(ListReportsHandler(deps)))
	v1.Get("/reports/:id", with(GetReportHandler(deps)))
	v1.Get("/leaderboard", with(LeaderboardHandler(deps)))
	v1.Get("/geocode/reverse", with(ReverseGeocodeHandler(deps)))

	col := v1.Group("/collector", collector)
	col.Get("/reports", with(NearbyReportsHandler(deps)))
	col.Get("/reports/:id/route", timeout.NewWithContext(ReportRouteHandler(deps), routeTimeout))
	col.Post("/reports/:id/resolve", with(ResolveReportHandler(deps)))

	adm := v1.Group("/admin", admin)
	adm.Get("/reports", with(ListReportsHandler(deps)))
	adm.Get("/metrics", with(MetricsHandler(deps)))
	adm.Get("/heatmap", with(HeatmapHandler(deps)))
	adm.Get("/charts/monthly", with(MonthlyChartHandler(deps)))
	adm.Get("/charts/areas", with(AreasChartHandler(deps)))

	app.Post("/graphql", authn, with(GraphQLHandler(deps)))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, authn)
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
