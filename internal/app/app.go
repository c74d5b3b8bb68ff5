// Package app wires configuration, infrastructure, and modules into a
// runnable server.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	s3adapter "github.com/convertly/server/internal/adapter/outbound/s3"
	"github.com/convertly/server/internal/module/billing"
	"github.com/convertly/server/internal/module/billing/usage"
	"github.com/convertly/server/internal/module/file"
	"github.com/convertly/server/internal/module/tool"
	"github.com/convertly/server/internal/shared/cache"
	"github.com/convertly/server/internal/shared/config"
	"github.com/convertly/server/internal/shared/database"
	"github.com/convertly/server/internal/shared/logger"
	"github.com/convertly/server/internal/shared/metrics"
	"github.com/convertly/server/internal/shared/middleware"
)

// App holds the wired application.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine

	registry      *tool.Registry
	reaper        *file.Reaper
	usageRecorder *usage.Recorder

	billingHandler *billing.Handler
	fileHandler    *file.Handler
	toolHandler    *tool.Handler

	reaperCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrate(
		&billing.CreditState{},
		&billing.Subscription{},
		&billing.UsageRecord{},
		&file.File{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Redis is optional: without it the tier cache and sweep lock are
	// skipped, which degrades performance but not correctness.
	var redisClient redis.UniversalClient
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, running without tier cache and sweep lock", zap.Error(err))
			redisClient = nil
		}
	}

	storage, err := s3adapter.New(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	m := metrics.New("convertly")

	app := &App{
		config: cfg,
		logger: log,
		db:     db,
		redis:  redisClient,
	}
	app.initModules(storage, m)
	app.router = app.setupRouter(m)

	return app, nil
}

func (a *App) initModules(storage file.ObjectStorage, m *metrics.Metrics) {
	cfg := a.config

	// Billing: ledger over the credit state table, tiers from subscriptions
	// with an optional Redis cache in front.
	billingRepo := billing.NewRepository(a.db)
	var tiers billing.TierProvider = billing.NewSubscriptionTierProvider(a.db)
	if a.redis != nil {
		tiers = billing.NewCachedTierProvider(tiers, a.redis, cfg.Billing.TierCacheTTL, a.logger)
	}
	ledger := billing.NewLedger(billingRepo, tiers, nil, a.logger, m, cfg.Billing.ReserveMaxAttempts)
	a.usageRecorder = usage.NewRecorder(billingRepo, a.logger, m, cfg.Billing.UsageBufferSize)

	// Files: lifecycle manager plus the expiry reaper.
	fileRepo := file.NewRepository(a.db)
	manager := file.NewManager(fileRepo, storage, nil, a.logger, file.ManagerConfig{
		DefaultTTL:      cfg.Lifecycle.DefaultTTL,
		UploadURLExpiry: cfg.Lifecycle.UploadURLExpiry,
	})
	var sweepLock file.Locker
	if a.redis != nil {
		sweepLock = file.NewRedisSweepLock(a.redis, "reaper:sweep-lock", cfg.Lifecycle.SweepLockTTL)
	}
	a.reaper = file.NewReaper(manager, fileRepo, sweepLock, nil, a.logger, m, file.ReaperConfig{
		Interval:  cfg.Lifecycle.SweepInterval,
		BatchSize: cfg.Lifecycle.SweepBatchSize,
	})

	// Tools: the orchestrator ties reservation, processing, and usage
	// recording together. Processors register via RegisterProcessor.
	a.registry = tool.NewRegistry()
	toolService := tool.NewService(a.registry, ledger, manager, a.usageRecorder, nil, a.logger)

	a.billingHandler = billing.NewHandler(ledger, a.logger)
	a.fileHandler = file.NewHandler(manager, a.logger)
	a.toolHandler = tool.NewHandler(toolService, a.registry, a.logger)
}

func (a *App) setupRouter(m *metrics.Metrics) *gin.Engine {
	if !a.config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.Logging(a.logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Metrics(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.Identity())
	a.billingHandler.RegisterRoutes(api)
	a.fileHandler.RegisterRoutes(api)
	a.toolHandler.RegisterRoutes(api)

	return router
}

// RegisterProcessor adds a tool processor to the registry. Call before
// Start.
func (a *App) RegisterProcessor(p tool.Processor) {
	a.registry.Register(p)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches background workers.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.reaperCancel = cancel
	go a.reaper.Run(ctx)
}

// Stop shuts down background workers and closes connections.
func (a *App) Stop() {
	if a.reaperCancel != nil {
		a.reaperCancel()
	}
	a.usageRecorder.Close()

	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
