package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/environmenttech/wastewatch/internal/adapters/http"
	natsadapter "github.com/environmenttech/wastewatch/internal/adapters/nats"
	"github.com/environmenttech/wastewatch/internal/adapters/nominatim"
	"github.com/environmenttech/wastewatch/internal/adapters/ors"
	"github.com/environmenttech/wastewatch/internal/adapters/postgres"
	"github.com/environmenttech/wastewatch/internal/adapters/valkey"
	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
	"github.com/environmenttech/wastewatch/internal/pkg/config"
	"github.com/environmenttech/wastewatch/internal/pkg/logging"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
	"github.com/environmenttech/wastewatch/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load("wastewatch-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup("wastewatch-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, cfg.Telemetry.SampleRatio)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolStats(ctx, db)

	// Cache. Left as a nil interface when unavailable so services skip it.
	var (
		cache  ports.CacheService
		pinger http.Pinger
	)
	if vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache, pinger = vc, vc
	}

	// NATS
	nc, err := natsadapter.Connect(cfg.NATS.URL, "wastewatch-api")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(nc); err != nil {
		slog.Warn("jetstream unavailable, report events disabled", "error", err)
	} else {
		publisher = pub
	}

	// Outbound providers
	directions := ors.New(ors.Config{
		BaseURL: cfg.ORS.BaseURL,
		APIKey:  cfg.ORS.APIKey,
		Profile: cfg.ORS.Profile,
		Timeout: cfg.ORS.Timeout,
	})
	if cfg.ORS.APIKey == "" {
		slog.Warn("ors.api_key not set, directions requests will be rejected")
	}
	geocoder := nominatim.New(nominatim.Config{
		BaseURL:   cfg.Nominatim.BaseURL,
		UserAgent: cfg.Nominatim.UserAgent,
		Timeout:   cfg.Nominatim.Timeout,
	}, cache)

	authSvc, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// Repos and use cases
	reportRepo := postgres.NewReportRepo(db)

	deps := &http.Dependencies{
		Reports:   usecases.NewReportService(reportRepo, publisher, cache),
		Proximity: usecases.NewProximityService(reportRepo),
		Routes: usecases.NewRouteService(directions, usecases.RouteConfig{
			FallbackOrigin:     domain.Coordinate{Lat: cfg.Geolocation.FallbackLat, Lon: cfg.Geolocation.FallbackLon},
			GeolocationTimeout: cfg.Geolocation.Timeout,
		}),
		Admin:    usecases.NewAdminService(reportRepo, reportRepo, cache),
		Geocoder: geocoder,
		Auth:     authSvc,
		Locators: func(collectorID string) ports.Geolocator {
			return natsadapter.NewPositionLocator(nc, collectorID)
		},
		NATS:    nc,
		DB:      db,
		Cache:   pinger,
		Version: version,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "WasteWatch API",
	})

	http.SetupRoutes(app, deps, http.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		}
	}
}
