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
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/fleetview/internal/adapters/http"
	natsadapter "github.com/samirrijal/fleetview/internal/adapters/nats"
	"github.com/samirrijal/fleetview/internal/adapters/traccar"
	"github.com/samirrijal/fleetview/internal/adapters/valkey"
	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/ports"
	"github.com/samirrijal/fleetview/internal/core/usecases"
	"github.com/samirrijal/fleetview/internal/pkg/config"
	"github.com/samirrijal/fleetview/internal/pkg/logging"
	"github.com/samirrijal/fleetview/internal/pkg/telemetry"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

func main() {
	cfg, err := config.Load("fleetview-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Backend
	api, err := traccar.New(traccar.Options{
		BaseURL:  cfg.Backend.BaseURL,
		User:     cfg.Backend.User,
		Password: cfg.Backend.Password,
		Token:    cfg.Backend.Token,
		Timeout:  cfg.Backend.RequestTimeout(),
	}, nil)
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}

	deps := &http.Dependencies{}

	// Cache (optional)
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer c.Close()
			cache = c
			deps.Cache = c
		}
	}

	// State-change events: NATS when enabled, in-process otherwise
	var publisher ports.EventPublisher
	var natsSub *natsadapter.Subscriber
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, falling back to in-process events", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			deps.NATS = pub.Conn()
			natsSub = natsadapter.NewSubscriber(pub.Conn())
			deps.Events = natsSub
		}
	}
	if publisher == nil {
		local := usecases.NewLocalEvents()
		publisher = local
		deps.Events = local
	}

	// Store and fetch procedures
	clock := timeutil.RealClock{}
	store := usecases.NewTrackingStore(clock, publisher)
	deps.Tracking = usecases.NewTrackingService(api, store, cache, clock, usecases.TrackingOptions{
		DuplicateSessionFetch: cfg.Backend.DuplicateSessionFetch,
		RouteTolerance:        cfg.Backend.RouteTolerance,
		DefaultWindow:         time.Duration(cfg.Backend.WindowHours) * time.Hour,
		RouteCacheTTL:         cfg.Valkey.RouteTTL,
	})

	// Paths refreshed by cmd/realtime are installed into this store so
	// live events and snapshots describe the same state.
	if natsSub != nil {
		unsubscribe, err := natsSub.SubscribePathUpdates(ctx, func(u *domain.PathUpdate) {
			change, err := store.ApplyPathUpdate(u)
			if err != nil {
				slog.Warn("rejecting path update", "device_id", u.DeviceID, "error", err)
				return
			}
			slog.Debug("path update applied", "device_id", u.DeviceID, "version", change.Version)
		})
		if err != nil {
			slog.Warn("path update subscription failed", "error", err)
		} else {
			defer unsubscribe()
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // route uploads through PUT /v1/state/route
		AppName:      "fleetview API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "ETag, X-State-Version",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "backend", cfg.Backend.BaseURL)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
