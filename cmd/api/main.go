package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"contractapi/internal/config"
	"contractapi/internal/database"
	"contractapi/internal/database/migration"
	handlers "contractapi/internal/http/handler"
	"contractapi/internal/http/middleware"
	"contractapi/internal/otel"
	"contractapi/internal/repository/postgres"
	"contractapi/internal/service"
	"contractapi/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx := context.Background()

	// Initialize OTLP tracing (no-op when OTEL_SDK_DISABLED=true)
	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Apply the contracts schema on first boot
	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	// Initialize repository and service
	contractRepo := postgres.NewContractPostgres(db)
	contractSvc := service.NewContractService(objStore, contractRepo)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.MaxFileSize) + 1024*1024, // payload plus multipart overhead
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	// Trace every request
	app.Use(otelfiber.Middleware())

	// Per-IP rate limiting
	if cfg.Security.RateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.Security.RateLimitPerMinute, time.Minute)
		app.Use(limiter.Handler())
	}

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register prometheus metrics: %v", err)
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())(c.Context())
		return nil
	})

	// Register HTTP routes with injected service. Must come after the fixed
	// routes above because of the catch-all short-link route.
	handlers.RegisterRoutes(app, db, contractSvc, cfg)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
