package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LocatorFactory returns the live position source for a collector.
type LocatorFactory func(collectorID string) ports.Geolocator

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Reports   *usecases.ReportService
	Proximity *usecases.ProximityService
	Routes    *usecases.RouteService
	Admin     *usecases.AdminService
	Geocoder  ports.ReverseGeocoder
	Auth      *auth.Service
	Locators  LocatorFactory
	NATS      *nats.Conn
	DB        Pinger
	Cache     Pinger
	Version   string
}
