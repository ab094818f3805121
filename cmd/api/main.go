package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/api/handlers"
	redisCache "github.com/gradepilot/backend/internal/cache/redis"
	"github.com/gradepilot/backend/internal/llm"
	"github.com/gradepilot/backend/internal/metrics"
	"github.com/gradepilot/backend/internal/middleware/ratelimit"
	"github.com/gradepilot/backend/internal/middleware/security"
	"github.com/gradepilot/backend/internal/middleware/validation"
	"github.com/gradepilot/backend/internal/objectstore"
	"github.com/gradepilot/backend/internal/ocr"
	"github.com/gradepilot/backend/internal/session"
	"github.com/gradepilot/backend/internal/storage/sqlite"
	"github.com/gradepilot/backend/pkg/config"
	appLogger "github.com/gradepilot/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting GradePilot API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	objectStore, err := objectstore.New(context.Background(), cfg.Storage)
	if err != nil {
		appLogger.Fatal("Failed to create object store client", zap.Error(err))
	}

	err = objectStore.EnsureBuckets(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure buckets", zap.Error(err))
	}

	var extractor ocr.Extractor = ocr.NewEngine(cfg.OCR)

	var cacheClient *redisCache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redisCache.NewClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, extraction cache disabled", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
			extractor = ocr.NewCachedExtractor(extractor, cacheClient)
		}
	}

	llmClient := llm.NewClient(cfg.LLM)

	processor := session.NewProcessor(
		sqliteClient,
		objectStore,
		extractor,
		llmClient,
		llm.BuildGradingPrompt,
		llm.ParseScore,
		cfg.Grading,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()
	app.Use(rateLimiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
		Logger:        appLogger.GetLogger(),
	}))

	submissionHandler := handlers.NewSubmissionHandler(objectStore, sqliteClient, processor)
	gradingHandler := handlers.NewGradingHandler(sqliteClient, processor)
	socketHandler := handlers.NewSessionSocketHandler(processor)

	api := app.Group("/api/v1")

	api.Post("/submissions", submissionHandler.CreateSubmission)
	api.Post("/grade", gradingHandler.ProcessSession)
	api.Get("/sessions/:id", gradingHandler.GetSession)
	api.Get("/sessions", gradingHandler.GetUserSessions)

	if cacheClient != nil {
		cacheHandler := handlers.NewCacheHandler(cacheClient)
		api.Delete("/cache/extractions", cacheHandler.InvalidateExtractions)
	}

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions", websocket.New(socketHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
