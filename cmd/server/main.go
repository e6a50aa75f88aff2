package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlee/checkline-backend/config"
	"github.com/mlee/checkline-backend/internal/app/controller"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/app/service"
	"github.com/mlee/checkline-backend/internal/db"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/mlee/checkline-backend/internal/middleware"
	"github.com/mlee/checkline-backend/internal/router"
	"github.com/mlee/checkline-backend/internal/scheduler"
	"github.com/mlee/checkline-backend/internal/storage"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/mlee/checkline-backend/pkg/payment/terminalpay"
	"github.com/mlee/checkline-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      "console", // Use "json" for production
		EnableColor: true,
	})

	logger.Info("Starting CHECKLINE Backend Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Change feed: hub plus, when Redis is configured, the cross-instance
	// bridge. Without Redis the hub alone serves single-instance fan-out.
	hub := feed.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher feed.Publisher = hub
	if cfg.Redis.Host != "" {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer redis.Close()

		bridge := feed.NewBridge(hub, redis.GetClient(), cfg.Redis.FeedChannel)
		go bridge.Run(ctx)
		publisher = bridge
	}

	// Card terminal provider
	terminalClient, err := terminalpay.NewClient(terminalpay.Config{
		APIKey:     cfg.Payment.Terminal.APIKey,
		MerchantID: cfg.Payment.Terminal.MerchantID,
		BaseURL:    cfg.Payment.Terminal.BaseURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize terminal provider client", err)
	}

	// Audit archive storage (optional)
	var archive service.ArchiveStorage
	if cfg.S3.Bucket != "" {
		archive = storage.NewS3Storage(
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.BaseURL,
		)
	}

	// Initialize repositories
	gormDB := db.GetDB()
	storeRepo := repository.NewStoreRepository(gormDB)
	productRepo := repository.NewProductRepository(gormDB)
	inventoryRepo := repository.NewInventoryRepository(gormDB)
	cartRepo := repository.NewCartRepository(gormDB)
	queueRepo := repository.NewQueueRepository(gormDB)
	orderRepo := repository.NewOrderRepository(gormDB)
	intentRepo := repository.NewPaymentIntentRepository(gormDB)
	loyaltyRepo := repository.NewLoyaltyRepository(gormDB)
	deviceRepo := repository.NewDeviceRepository(gormDB)

	// Initialize services
	authService := service.NewAuthService(deviceRepo, cfg.JWT.Secret, cfg.JWT.TokenExpiry)
	cartService := service.NewCartService(cartRepo, publisher, cfg.Sweep.CartExpiry, gormDB)
	queueService := service.NewQueueService(queueRepo, cartService, publisher, gormDB)
	settlementService := service.NewSettlementService(gormDB)
	paymentService := service.NewPaymentService(intentRepo, orderRepo, storeRepo, settlementService, terminalClient, publisher, gormDB)
	productService := service.NewProductService(productRepo, inventoryRepo, gormDB)
	loyaltyService := service.NewLoyaltyService(loyaltyRepo, storeRepo, gormDB)
	auditService := service.NewAuditService(inventoryRepo, orderRepo, archive)

	// Initialize controllers
	authController := controller.NewAuthController(authService)
	cartController := controller.NewCartController(cartService)
	queueController := controller.NewQueueController(queueService, cartService)
	paymentController := controller.NewPaymentController(paymentService, cartService)
	productController := controller.NewProductController(productService)
	loyaltyController := controller.NewLoyaltyController(loyaltyService)
	auditController := controller.NewAuditController(auditService)
	feedController := controller.NewFeedController(hub, cfg.CORS.AllowedOrigins)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Background maintenance jobs
	sweeper := scheduler.NewSweepScheduler(cartService, paymentService, auditService, cartRepo, storeRepo, cfg.Sweep)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start sweep scheduler", err)
	}
	defer sweeper.Stop()

	// Setup router
	r := router.NewRouter(
		authController,
		cartController,
		queueController,
		paymentController,
		productController,
		loyaltyController,
		auditController,
		feedController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server started successfully", map[string]interface{}{
			"address": addr,
			"pid":     os.Getpid(),
		})
		if err := engine.Run(addr); err != nil {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	logger.Info("Server stopped successfully")
}
