package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/environmenttech/wastewatch/internal/adapters/geolocation"
	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/pkg/geospatial"
)

// nearbyReport is one entry of the collector's ranked list.
type nearbyReport struct {
	domain.WasteReport
	Priority     domain.Priority `json:"priority"`
	DistanceKm   *float64        `json:"distance_km"`
	Minutes      *int            `json:"minutes"`
	DistanceText string          `json:"distance_text,omitempty"`
	DurationText string          `json:"duration_text,omitempty"`
}

// routeResponse is a resolved route. Distance and duration are null when the
// route was built from the fallback origin.
type routeResponse struct {
	ReportID        string                   `json:"report_id"`
	Origin          domain.Coordinate        `json:"origin"`
	Destination     domain.Coordinate        `json:"destination"`
	Path            []domain.Coordinate      `json:"path"`
	Polyline        string                   `json:"polyline"`
	DistanceKm      *float64                 `json:"distance_km"`
	DurationMinutes *int                     `json:"duration_minutes"`
	DistanceText    string                   `json:"distance_text,omitempty"`
	DurationText    string                   `json:"duration_text,omitempty"`
	Available       bool                     `json:"available"`
	Fallback        bool                     `json:"fallback"`
	FallbackReason  domain.GeolocationReason `json:"fallback_reason,omitempty"`
}

// NearbyReportsHandler lists open reports nearest first from the collector's
// position. Without lat/lon the reports are returned unranked.
func NearbyReportsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reported, err := geolocation.FromQuery(c.Query("lat"), c.Query("lon"), "")
		if err != nil {
			return errFromDomain(c, err)
		}

		radius := c.QueryFloat("radius_km", 0)
		if radius < 0 || radius > 100 {
			return errBadRequest(c, "radius_km must be between 0 and 100")
		}
		limit := c.QueryInt("limit", 50)

		ranked, err := deps.Proximity.NearbyOpen(c.UserContext(), reported.Fix, radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}

		out := make([]nearbyReport, 0, len(ranked))
		for _, r := range ranked {
			item := nearbyReport{WasteReport: r.Report, Priority: r.Report.Priority()}
			if r.Estimate != nil {
				km, mins := r.Estimate.DistanceKm, r.Estimate.Minutes
				item.DistanceKm = &km
				item.Minutes = &mins
				item.DistanceText = fmt.Sprintf("%.2f km", km)
				item.DurationText = fmt.Sprintf("%d mins", mins)
			}
			out = append(out, item)
		}

		c.Set("Cache-Control", "no-store")
		return c.JSON(out)
	}
}

// ReportRouteHandler resolves a driving route from the collector to a report.
// The device may attach its fix as lat/lon, or a failure as geo_error; when it
// sends neither, a live fix is requested from the collector's connected devices.
func ReportRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)

		// An unusable device fix counts as a failed position fix, not a bad request.
		reported, err := geolocation.FromQuery(c.Query("lat"), c.Query("lon"), c.Query("geo_error"))
		if err != nil {
			reported = geolocation.Reported{Reason: domain.GeoUnsupported}
		}

		report, err := deps.Reports.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}

		var locator ports.Geolocator = reported
		if !reported.Present() && deps.Locators != nil {
			locator = geolocation.Chain{reported, deps.Locators(claims.UserID)}
		}

		summary, err := deps.Routes.ResolveLatest(c.UserContext(), claims.UserID, report.Location, locator)
		if err != nil {
			if errors.Is(err, domain.ErrSuperseded) {
				LoggerFromCtx(c.UserContext()).Debug("route request superseded", "report_id", report.ID)
			}
			return errFromDomain(c, err)
		}

		c.Set("Cache-Control", "no-store")
		return c.JSON(newRouteResponse(report.ID, summary))
	}
}

// ResolveReportHandler marks a report resolved by the calling collector.
func ResolveReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := deps.Reports.Resolve(c.UserContext(), c.Params("id"), claimsFrom(c).UserID)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(report)
	}
}

func newRouteResponse(reportID string, s *domain.RouteSummary) routeResponse {
	resp := routeResponse{
		ReportID:       reportID,
		Origin:         s.Origin,
		Destination:    s.Destination,
		Path:           s.Path,
		Polyline:       geospatial.EncodePath(s.Path),
		Available:      s.Available,
		Fallback:       s.Fallback,
		FallbackReason: s.FallbackReason,
	}
	if s.Available {
		km, mins := s.DistanceKm(), s.DurationMinutes()
		resp.DistanceKm = &km
		resp.DurationMinutes = &mins
		resp.DistanceText = s.DistanceText()
		resp.DurationText = s.DurationText()
	}
	return resp
}

func domainValidation(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}
