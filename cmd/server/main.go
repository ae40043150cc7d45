// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpesa-gateway/config"
	"mpesa-gateway/internal/cache"
	"mpesa-gateway/internal/handler"
	"mpesa-gateway/internal/notify"
	"mpesa-gateway/internal/provider/mpesa"
	"mpesa-gateway/internal/repository"
	"mpesa-gateway/internal/router"
	"mpesa-gateway/internal/usecase"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting mpesa gateway")

	// Load configuration
	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	// Connect to database
	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database",
		zap.String("database", cfg.Database.DBName))

	// Connect to redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	redisCache := cache.NewCacheWithClient(redisClient)

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(dbPool)
	tenantRepo := repository.NewTenantRepository(dbPool, cfg.DefaultTenant())

	// Initialize provider client
	tokenStore := mpesa.NewRedisTokenStore(redisCache)
	tokenCache := mpesa.NewTokenCache(tokenStore, logger)
	mpesaClient := mpesa.NewClient(tokenCache, logger)

	// Initialize usecases
	notifier := notify.NewRedisNotifier(redisClient, cfg.NotifyChannel, logger)
	reconciler := usecase.NewReconciler(orderRepo, notifier, logger)
	payments := usecase.NewPayments(mpesaClient, orderRepo, tenantRepo, redisCache,
		cfg.StoreName, cfg.Debug, logger)

	// Initialize handlers
	webhookHandler := handler.NewWebhookHandler(reconciler, payments, tenantRepo, nil, logger)
	paymentHandler := handler.NewPaymentHandler(payments, logger)

	// Setup routes
	r := router.SetupRoutes(webhookHandler, paymentHandler, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("mpesa gateway started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
