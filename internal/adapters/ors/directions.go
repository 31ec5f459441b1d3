package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/pkg/geospatial"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

type directionsResponse struct {
	Features []struct {
		Geometry   json.RawMessage `json:"geometry"`
		Properties struct {
			Summary *struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

type lineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// Directions requests a driving route. Provider failures match domain.ErrRouteProvider.
func (c *Client) Directions(ctx context.Context, origin, destination domain.Coordinate) (_ *domain.RouteSummary, err error) {
	defer observe(ctx, time.Now())(&err)

	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := destination.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/v2/directions/"+c.profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRouteProvider, err)
	}
	q := req.URL.Query()
	q.Set("api_key", c.apiKey)
	// provider order is lon,lat
	q.Set("start", origin.LonLat())
	q.Set("end", destination.LonLat())
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRouteProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrRouteProvider, err)
	}
	return ParseDirections(body)
}

// ParseDirections decodes a directions body into a summary with path, distance and duration.
func ParseDirections(body []byte) (*domain.RouteSummary, error) {
	var decoded directionsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode directions: %w", domain.ErrRouteProvider, err)
	}
	if len(decoded.Features) == 0 {
		return nil, fmt.Errorf("%w: no route features", domain.ErrRouteProvider)
	}

	feature := decoded.Features[0]
	summary := feature.Properties.Summary
	// Zero-valued summary fields are omitted by the provider.
	if summary == nil {
		return nil, fmt.Errorf("%w: missing route summary", domain.ErrRouteProvider)
	}

	path, err := DecodeGeometry(feature.Geometry)
	if err != nil {
		return nil, err
	}

	return &domain.RouteSummary{
		Path:            path,
		DistanceMeters:  summary.Distance,
		DurationSeconds: summary.Duration,
	}, nil
}

// DecodeGeometry accepts a GeoJSON LineString of [lon, lat] positions, which is
// swapped to (lat, lon), or an encoded polyline string, which is already (lat, lon).
func DecodeGeometry(raw json.RawMessage) ([]domain.Coordinate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing geometry", domain.ErrGeometryDecode)
	}

	var path []domain.Coordinate
	switch raw[0] {
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrGeometryDecode, err)
		}
		decoded, err := geospatial.DecodePath(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrGeometryDecode, err)
		}
		path = decoded
	case '{':
		var ls lineString
		if err := json.Unmarshal(raw, &ls); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrGeometryDecode, err)
		}
		if ls.Type != "LineString" {
			return nil, fmt.Errorf("%w: unsupported geometry type %q", domain.ErrGeometryDecode, ls.Type)
		}
		path = make([]domain.Coordinate, 0, len(ls.Coordinates))
		for i, pos := range ls.Coordinates {
			if len(pos) < 2 {
				return nil, fmt.Errorf("%w: position %d has %d values", domain.ErrGeometryDecode, i, len(pos))
			}
			p := domain.Coordinate{Lat: pos[1], Lon: pos[0]}
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("%w: position %d: %w", domain.ErrGeometryDecode, i, err)
			}
			path = append(path, p)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected geometry encoding", domain.ErrGeometryDecode)
	}

	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", domain.ErrGeometryDecode)
	}
	return path, nil
}

// observe records latency and result of one directions call.
func observe(ctx context.Context, start time.Time) func(*error) {
	return func(errp *error) {
		elapsed := time.Since(start)
		metrics.DirectionsDuration.Observe(elapsed.Seconds())

		result := "ok"
		var he *HTTPStatusError
		switch {
		case *errp == nil:
		case errors.As(*errp, &he):
			result = fmt.Sprintf("http_%d", he.Code)
		case errors.Is(*errp, domain.ErrInvalidCoordinate):
			result = "invalid"
		case errors.Is(*errp, domain.ErrGeometryDecode):
			result = "bad_geometry"
		case errors.Is(*errp, context.Canceled), errors.Is(*errp, context.DeadlineExceeded):
			result = "timeout"
		default:
			result = "error"
		}
		metrics.DirectionsRequests.WithLabelValues(result).Inc()
		slog.DebugContext(ctx, "ors.directions", "result", result, "duration", elapsed)
	}
}
