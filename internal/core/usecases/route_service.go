package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

// DefaultFallbackOrigin is the city-centre point used when the collector cannot be located (Pune).
var DefaultFallbackOrigin = domain.Coordinate{Lat: 18.5204, Lon: 73.8567}

// DefaultGeolocationTimeout bounds the wait for a fresh position fix.
const DefaultGeolocationTimeout = 15 * time.Second

const (
	outcomeResolved    = "resolved"
	outcomeFallback    = "fallback"
	outcomeUnavailable = "unavailable"
	outcomeInvalid     = "invalid"
	outcomeSuperseded  = "superseded"
	outcomeCancelled   = "cancelled"
)

var tracer = otel.Tracer("github.com/environmenttech/wastewatch/internal/core/usecases")

// RouteConfig tunes route resolution.
type RouteConfig struct {
	FallbackOrigin     domain.Coordinate
	GeolocationTimeout time.Duration
}

// RouteService resolves driving routes from the collector's position to a report.
//
// Resolution runs AcquireOrigin, RequestRoute, Decode and Summarize in order.
// Only a failed position fix degrades to the fallback origin; once a directions
// request has been attempted its failure is returned as domain.ErrRouteUnavailable.
type RouteService struct {
	directions ports.DirectionsProvider
	cfg        RouteConfig
	latest     *latestTracker
}

// NewRouteService creates a new RouteService. Zero config fields take the defaults.
func NewRouteService(directions ports.DirectionsProvider, cfg RouteConfig) *RouteService {
	if cfg.FallbackOrigin == (domain.Coordinate{}) {
		cfg.FallbackOrigin = DefaultFallbackOrigin
	}
	if cfg.GeolocationTimeout <= 0 {
		cfg.GeolocationTimeout = DefaultGeolocationTimeout
	}
	return &RouteService{directions: directions, cfg: cfg, latest: newLatestTracker()}
}

// Resolve computes a route to destination starting from the position reported by locator.
func (s *RouteService) Resolve(ctx context.Context, destination domain.Coordinate, locator ports.Geolocator) (*domain.RouteSummary, error) {
	return s.observe(ctx, destination, locator, nil)
}

// ResolveLatest is Resolve with last-request-wins semantics per session. A newer
// call for the same session cancels this one, which then returns domain.ErrSuperseded.
func (s *RouteService) ResolveLatest(ctx context.Context, session string, destination domain.Coordinate, locator ports.Geolocator) (*domain.RouteSummary, error) {
	ctx, r := s.latest.begin(ctx, session)
	defer s.latest.finish(r)
	return s.observe(ctx, destination, locator, r)
}

func (s *RouteService) observe(ctx context.Context, destination domain.Coordinate, locator ports.Geolocator, r *inflightResolution) (*domain.RouteSummary, error) {
	ctx, span := tracer.Start(ctx, "route.resolve", trace.WithAttributes(
		attribute.Float64("route.destination.lat", destination.Lat),
		attribute.Float64("route.destination.lon", destination.Lon),
	))
	defer span.End()

	start := time.Now()
	summary, outcome, err := s.resolve(ctx, destination, locator)
	if r != nil && !s.latest.isCurrent(r) {
		summary, outcome, err = nil, outcomeSuperseded, domain.ErrSuperseded
	}

	metrics.RouteResolutions.WithLabelValues(outcome).Inc()
	metrics.RouteResolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("route.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

func (s *RouteService) resolve(ctx context.Context, destination domain.Coordinate, locator ports.Geolocator) (*domain.RouteSummary, string, error) {
	if err := destination.Validate(); err != nil {
		return nil, outcomeInvalid, fmt.Errorf("destination: %w", err)
	}

	origin, err := s.acquireOrigin(ctx, locator)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomeCancelled, ctx.Err()
		}
		reason := domain.GeoUnsupported
		var geoErr *domain.GeolocationError
		if errors.As(err, &geoErr) {
			reason = geoErr.Reason
		}
		slog.InfoContext(ctx, "collector position unavailable, using fallback origin",
			"reason", reason, "error", err)
		return s.fallback(destination, reason), outcomeFallback, nil
	}

	route, err := s.directions.Directions(ctx, origin, destination)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomeCancelled, ctx.Err()
		}
		slog.WarnContext(ctx, "directions request failed", "error", err)
		return nil, outcomeUnavailable, fmt.Errorf("%w: %w", domain.ErrRouteUnavailable, err)
	}
	if route == nil || len(route.Path) == 0 {
		return nil, outcomeUnavailable, fmt.Errorf("%w: %w: empty path", domain.ErrRouteUnavailable, domain.ErrGeometryDecode)
	}

	route.Origin = origin
	route.Destination = destination
	route.Available = true
	route.Fallback = false
	return route, outcomeResolved, nil
}

// acquireOrigin asks for a fresh, high-accuracy fix within the geolocation timeout.
func (s *RouteService) acquireOrigin(ctx context.Context, locator ports.Geolocator) (domain.Coordinate, error) {
	if locator == nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, nil)
	}

	opts := domain.PositionOptions{
		HighAccuracy: true,
		Timeout:      s.cfg.GeolocationTimeout,
		MaxAge:       0,
	}
	lctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	origin, err := locator.CurrentPosition(lctx, opts)
	if err != nil {
		if ctx.Err() == nil && errors.Is(lctx.Err(), context.DeadlineExceeded) {
			return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoTimeout, err)
		}
		if !errors.Is(err, domain.ErrGeolocationUnavailable) {
			return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, err)
		}
		return domain.Coordinate{}, err
	}
	if err := origin.Validate(); err != nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, err)
	}
	return origin, nil
}

// fallback builds the degraded two-point summary with distance and duration unavailable.
func (s *RouteService) fallback(destination domain.Coordinate, reason domain.GeolocationReason) *domain.RouteSummary {
	return &domain.RouteSummary{
		Origin:         s.cfg.FallbackOrigin,
		Destination:    destination,
		Path:           []domain.Coordinate{s.cfg.FallbackOrigin, destination},
		Available:      false,
		Fallback:       true,
		FallbackReason: reason,
	}
}
