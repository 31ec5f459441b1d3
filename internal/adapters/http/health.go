package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 3 * time.Second

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// dependencyCheck probes one backing service. Only required checks gate readiness.
type dependencyCheck struct {
	name     string
	required bool
	probe    func(ctx context.Context) string
}

func pingProbe(p Pinger) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		if p == nil {
			return "not configured"
		}
		if err := p.Ping(ctx); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	}
}

func readinessChecks(deps *Dependencies) []dependencyCheck {
	return []dependencyCheck{
		{name: "database", required: true, probe: pingProbe(deps.DB)},
		{name: "cache", probe: pingProbe(deps.Cache)},
		{name: "nats", probe: func(context.Context) string {
			switch {
			case deps.NATS == nil:
				return "not configured"
			case deps.NATS.IsConnected():
				return "ok"
			default:
				return "disconnected"
			}
		}},
	}
}

// ReadyHandler probes the database, cache and broker concurrently. Only the
// database is required; the broker and cache degrade the service without
// stopping it.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		var mu sync.Mutex
		results := make(map[string]string, len(checks))
		ready := true

		g, gctx := errgroup.WithContext(ctx)
		for _, chk := range checks {
			g.Go(func() error {
				state := chk.probe(gctx)
				mu.Lock()
				defer mu.Unlock()
				results[chk.name] = state
				if chk.required && state != "ok" {
					ready = false
				}
				return nil
			})
		}
		_ = g.Wait()

		status, code := "ready", fiber.StatusOK
		if !ready {
			status, code = "not ready", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
