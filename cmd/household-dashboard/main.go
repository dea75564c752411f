package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/household-energy-dashboard/internal/api/http"
	"github.com/i474232898/household-energy-dashboard/internal/blobstore"
	"github.com/i474232898/household-energy-dashboard/internal/config"
	"github.com/i474232898/household-energy-dashboard/internal/household"
	"github.com/i474232898/household-energy-dashboard/internal/logger"
	"github.com/i474232898/household-energy-dashboard/internal/metrics"
	"github.com/i474232898/household-energy-dashboard/internal/scheduler"
	"github.com/i474232898/household-energy-dashboard/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg := logger.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Object store with resilience (backoff + circuit breaker).
	// The listing and every parallel download may land in one half-open window.
	breaker := blobstore.DefaultBreaker
	breaker.HalfOpenRequests = uint32(cfg.FetchConcurrency) + 1
	objects, err := blobstore.NewFromConfig(ctx, cfg.Store, blobstore.BackoffConfig{
		MaxRetries:      cfg.RetryMax,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMaxInterval,
	}, breaker)
	if err != nil {
		lg.Error("failed to init object store", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	refreshMetrics := metrics.NewRefreshMetrics(reg)

	// Published slot read by every request, written only by refreshes.
	slot := store.NewTableSlot()

	service := household.NewService(objects, slot, household.Options{
		DateFilters:  cfg.DateFilters,
		Concurrency:  cfg.FetchConcurrency,
		FetchTimeout: cfg.FetchTimeout,
		StrictDecode: cfg.StrictDecode,
	}, lg, refreshMetrics)

	// Eager first refresh; a failure leaves the slot empty and queries
	// return empty results until a later cycle succeeds.
	if err := service.Refresh(ctx); err != nil {
		lg.Warn("initial refresh failed", "error", err)
	}

	sched := scheduler.New(cfg.RefreshInterval, cfg.FetchTimeout, service, lg)
	if err := sched.Start(); err != nil {
		lg.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "household-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.FetchTimeout + 10*time.Second,
		ErrorHandler:          errorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "household-dashboard",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpapi.RegisterRoutes(app, service, slot)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("fiber server stopped", "error", err)
		}
	}()
	lg.Info("listening", "port", cfg.Port, "store", objects.Name())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during shutdown", "error", err)
	}
}

// errorHandler renders every error as {"error": true, "message": ...}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
