package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/coastal-conditions/internal/api/http"
	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/config"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/logging"
	"github.com/i474232898/coastal-conditions/internal/metrics"
	"github.com/i474232898/coastal-conditions/internal/station"
	"github.com/i474232898/coastal-conditions/internal/store"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/tide/noaa"
	"github.com/i474232898/coastal-conditions/internal/upstream"
	"github.com/i474232898/coastal-conditions/internal/weather"
	"github.com/i474232898/coastal-conditions/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.close(); err != nil {
			logger.Warn("closing store failed", zap.Error(err))
		}
	}()
	logger.Info("record store ready", zap.String("driver", cfg.StoreDriver))

	// Shared HTTP client for outbound upstream calls; each upstream gets its
	// own retry budget, rate limit and circuit breaker.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	newUpstream := func(name string) *upstream.Client {
		return upstream.NewClient(name, upstream.Config{
			Client: httpClient,
			Backoff: upstream.BackoffConfig{
				MaxRetries:      cfg.UpstreamMaxRetries,
				InitialInterval: upstream.DefaultBackoff.InitialInterval,
				MaxInterval:     upstream.DefaultBackoff.MaxInterval,
			},
			RateLimit: cfg.UpstreamRateLimit,
			Burst:     1,
			Metrics:   m,
		})
	}

	// Tides.
	noaaClient := noaa.NewClient(newUpstream("noaa"), noaa.Config{
		StationsURL: cfg.NOAAStationsURL,
		DataURL:     cfg.NOAADataURL,
	}, logger.Named("noaa"))
	tideCache := cache.NewOrchestrator[tide.Reading](stores.tide, cache.Options{
		Name:           "tide",
		TTL:            cfg.TideTTL,
		RefreshTimeout: cfg.RefreshTimeout,
	}, logger, m)
	tideSvc := tide.NewService(station.NewResolver(noaaClient), noaaClient, tideCache, logger.Named("tide"))

	// Weather. Open-Meteo needs no key; the others are enabled by theirs.
	provs := []weather.Provider{providers.NewOpenMeteoProvider(newUpstream("openmeteo"), cfg.OpenMeteoURL)}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(newUpstream("openweathermap"), "", cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(newUpstream("weatherapi"), "", cfg.WeatherAPIKey))
	}
	weatherCache := cache.NewOrchestrator[weather.Conditions](stores.weather, cache.Options{
		Name:           "weather",
		TTL:            cfg.WeatherTTL,
		RefreshTimeout: cfg.RefreshTimeout,
	}, logger, m)
	weatherSvc := weather.NewService(provs, weatherCache, geo.Keyer{Precision: cfg.WeatherKeyPrecision}, logger.Named("weather"))

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "coastal-conditions",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.RefreshTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := stores.ping(c.UserContext()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"service": "coastal-conditions",
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "coastal-conditions",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API routes.
	httpapi.RegisterRoutes(app, weatherSvc, tideSvc, logger.Named("http"))

	// Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("port", cfg.Port), zap.Int("weather_providers", len(provs)))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	return nil
}

// recordStores bundles the per-domain stores of the configured driver.
type recordStores struct {
	tide    cache.Store[tide.Reading]
	weather cache.Store[weather.Conditions]
	ping    func(ctx context.Context) error
	close   func() error
}

func openStores(ctx context.Context, cfg *config.AppConfig) (recordStores, error) {
	var (
		db  *store.DB
		err error
	)

	switch cfg.StoreDriver {
	case "memory":
		return recordStores{
			tide:    store.NewMemoryStore[tide.Reading](cfg.StoreMaxHistory),
			weather: store.NewMemoryStore[weather.Conditions](cfg.StoreMaxHistory),
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil
	case "postgres":
		db, err = store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.StoreMaxHistory)
	default:
		db, err = store.OpenSQLite(ctx, cfg.SQLitePath, cfg.StoreMaxHistory)
	}
	if err != nil {
		return recordStores{}, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	return recordStores{
		tide:    db.TideRecords(),
		weather: db.WeatherRecords(),
		ping:    db.Ping,
		close:   db.Close,
	}, nil
}
