package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/environmenttech/wastewatch/internal/adapters/geolocation"
	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// MetricsHandler returns the dashboard counters.
func MetricsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := deps.Admin.Metrics(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(m)
	}
}

// HeatmapHandler returns weighted report locations, optionally unresolved only.
func HeatmapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		points, err := deps.Admin.Heatmap(c.UserContext(), c.QueryBool("unresolved", false))
		if err != nil {
			return errFromDomain(c, err)
		}
		if points == nil {
			points = []domain.HeatPoint{}
		}
		return c.JSON(points)
	}
}

// MonthlyChartHandler returns report counts for the last twelve months.
func MonthlyChartHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts, err := deps.Admin.MonthlyCounts(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(counts)
	}
}

// AreasChartHandler returns the areas with the most reports.
func AreasChartHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 6)
		if limit <= 0 || limit > 50 {
			return errBadRequest(c, "limit must be between 1 and 50")
		}
		areas, err := deps.Admin.TopAreas(c.UserContext(), limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if areas == nil {
			areas = []domain.AreaCount{}
		}
		return c.JSON(areas)
	}
}

// LeaderboardHandler ranks reporters by number of reports filed.
func LeaderboardHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		if limit <= 0 || limit > 100 {
			limit = 10
		}
		entries, err := deps.Admin.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if entries == nil {
			entries = []domain.LeaderboardEntry{}
		}
		if !isAdmin(c) {
			viewer := claimsFrom(c)
			for i := range entries {
				if viewer == nil || entries[i].UserID != viewer.UserID {
					entries[i].Email = ""
				}
			}
		}
		c.Set("Cache-Control", "private, max-age=60")
		return c.JSON(entries)
	}
}

// ReverseGeocodeHandler resolves a coordinate to an address. When the geocoder
// fails the coordinate label is returned with fallback set.
func ReverseGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reported, err := geolocation.FromQuery(c.Query("lat"), c.Query("lon"), "")
		if err != nil {
			return errFromDomain(c, err)
		}
		if reported.Fix == nil {
			return newError(c, fiber.StatusBadRequest, "invalid_coordinate", "lat and lon are required")
		}
		at := *reported.Fix

		if deps.Geocoder != nil {
			label, err := deps.Geocoder.Reverse(c.UserContext(), at)
			if err == nil {
				c.Set("Cache-Control", "public, max-age=86400")
				return c.JSON(fiber.Map{"label": label, "location": at, "fallback": false})
			}
			LoggerFromCtx(c.UserContext()).Warn("reverse geocode failed", "error", err)
		}
		return c.JSON(fiber.Map{"label": at.Label(), "location": at, "fallback": true})
	}
}
