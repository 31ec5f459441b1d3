// Package nominatim resolves coordinates to street addresses using the
// OpenStreetMap Nominatim reverse endpoint.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "CommunityWasteManagement/1.0"
	DefaultTimeout   = 10 * time.Second

	cacheTTLSeconds = 24 * 60 * 60
)

// ErrNoAddress is returned when the provider has no address for the point.
var ErrNoAddress = errors.New("no address for location")

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Geocoder implements ports.ReverseGeocoder. Results are cached for a day
// when a cache is configured.
type Geocoder struct {
	baseURL   string
	userAgent string
	session   *http.Client
	cache     ports.CacheService
}

func New(cfg Config, cache ports.CacheService) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Geocoder{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		session:   &http.Client{Timeout: cfg.Timeout},
		cache:     cache,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display name of the address nearest to at.
func (g *Geocoder) Reverse(ctx context.Context, at domain.Coordinate) (string, error) {
	if err := at.Validate(); err != nil {
		return "", err
	}

	key := cacheKey(at)
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, key); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	name, err := g.fetch(ctx, at)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}
	metrics.GeocodeRequests.WithLabelValues("ok").Inc()

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, []byte(name), cacheTTLSeconds); err != nil {
			slog.WarnContext(ctx, "failed to cache reverse geocode", "key", key, "error", err)
		}
	}
	return name, nil
}

func (g *Geocoder) fetch(ctx context.Context, at domain.Coordinate) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.session.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("reverse geocode: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("reverse geocode: decode: %w", err)
	}
	if decoded.Error != "" || strings.TrimSpace(decoded.DisplayName) == "" {
		return "", ErrNoAddress
	}
	return decoded.DisplayName, nil
}

func cacheKey(at domain.Coordinate) string {
	return fmt.Sprintf("geocode:%.5f,%.5f", at.Lat, at.Lon)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoAddress):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
