package ports

import (
	"context"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishReportEvent(ctx context.Context, event *domain.ReportEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeReportEvents(ctx context.Context, durable string, handler func(ctx context.Context, event *domain.ReportEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Geolocator obtains the collector's current position.
// Failures must match domain.ErrGeolocationUnavailable.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error)
}

// DirectionsProvider fetches a driving route between two points.
// Failures must match domain.ErrRouteProvider.
type DirectionsProvider interface {
	Directions(ctx context.Context, origin, destination domain.Coordinate) (*domain.RouteSummary, error)
}

// ReverseGeocoder turns a coordinate into a human-readable address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, at domain.Coordinate) (string, error)
}
