package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/environmenttech/wastewatch/internal/adapters/nats"
	"github.com/environmenttech/wastewatch/internal/adapters/nominatim"
	"github.com/environmenttech/wastewatch/internal/adapters/postgres"
	"github.com/environmenttech/wastewatch/internal/adapters/valkey"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/config"
	"github.com/environmenttech/wastewatch/internal/pkg/logging"
	"github.com/environmenttech/wastewatch/internal/pkg/telemetry"
	"github.com/environmenttech/wastewatch/internal/workflows"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load("wastewatch-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup("wastewatch-worker", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, cfg.Telemetry.SampleRatio)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cache ports.CacheService
	if vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL, "wastewatch-worker")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	pub, err := natsadapter.NewPublisher(nc)
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}
	sub, err := natsadapter.NewSubscriber(nc)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer sub.Close()

	activities := &workflows.IntakeActivities{
		Reports: usecases.NewReportService(postgres.NewReportRepo(db), pub, cache),
		Geocoder: nominatim.New(nominatim.Config{
			BaseURL:   cfg.Nominatim.BaseURL,
			UserAgent: cfg.Nominatim.UserAgent,
			Timeout:   cfg.Nominatim.Timeout,
		}, cache),
	}
	starter := &workflows.Starter{TaskQueue: cfg.Temporal.TaskQueue, Activities: activities}

	if cfg.Temporal.Enabled {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("temporal client: %v", err)
		}
		defer c.Close()

		w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
		w.RegisterWorkflow(workflows.ReportIntakeWorkflow)
		w.RegisterActivity(activities)
		if err := w.Start(); err != nil {
			log.Fatalf("worker: %v", err)
		}
		defer w.Stop()

		starter.Client = c
		slog.Info("intake worker started", "task_queue", cfg.Temporal.TaskQueue)
	} else {
		slog.Warn("temporal disabled, running intake inline")
	}

	if err := sub.SubscribeReportEvents(ctx, cfg.NATS.Durable, starter.HandleReportEvent); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("consuming report events", "durable", cfg.NATS.Durable)

	<-ctx.Done()
	slog.Info("worker stopped")
}
