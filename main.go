// Package main provides the main entry point for the Simurgh outbound scheduling service
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/simurgh-io/simurgh/app/handlers"
	"github.com/simurgh-io/simurgh/app/middleware"
	"github.com/simurgh-io/simurgh/app/router"
	"github.com/simurgh-io/simurgh/app/scheduler"
	"github.com/simurgh-io/simurgh/app/services"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
	"github.com/simurgh-io/simurgh/config"
	"github.com/simurgh-io/simurgh/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Simurgh application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Setup graceful shutdown
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// Returns a nil client when caching is disabled; the reset lock and the
// provider cache both degrade gracefully without it.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeGatewayClient builds the provider-facing HTTP client, or a mock
// when no real gateway is reachable from the deployment
func initializeGatewayClient(cfg config.GatewayConfig) services.GatewayClient {
	if cfg.UseMock {
		log.Println("Gateway client running in mock mode")
		return services.NewMockGatewayClient()
	}
	return services.NewHTTPGatewayClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Daily boundary timezone, validated at config load
	zone, err := time.LoadLocation(cfg.Reset.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load reset timezone: %w", err)
	}

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	providerRepo := repository.NewGatewayProviderRepository(db)
	markerRepo := repository.NewResetMarkerRepository(db)

	// Initialize token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Log that services are initialized
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Dispatch job producer connects lazily so a broker outage does not block startup
	producer := services.NewAMQPDispatchProducer(cfg.Broker.URL, cfg.Broker.QueueName, cfg.Broker.ConnectAttempts, cfg.Broker.ConnectBackoff)
	stopFuncs = append(stopFuncs, func() {
		if err := producer.Close(); err != nil {
			log.Printf("Error closing dispatch producer: %v", err)
		}
	})

	gatewayClient := initializeGatewayClient(cfg.Gateway)

	// Initialize flows
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	selectorFlow := businessflow.NewGatewaySelectorFlow(
		providerRepo,
		instanceRepo,
		rc,
		rng,
	)

	balancerFlow := businessflow.NewInstanceBalancerFlow(instanceRepo)

	resetFlow := businessflow.NewDailyResetFlow(
		instanceRepo,
		markerRepo,
		db,
		rc,
		zone,
		cfg.Reset.LockTTL,
	)

	dispatchFlow := businessflow.NewDispatchFlow(
		campaignRepo,
		balancerFlow,
		producer,
	)

	poolFlow := businessflow.NewInstancePoolFlow(
		instanceRepo,
		providerRepo,
		selectorFlow,
		gatewayClient,
	)

	registryFlow := businessflow.NewGatewayRegistryFlow(
		providerRepo,
		instanceRepo,
	)

	adminAuthFlow := businessflow.NewAdminAuthFlow(
		cfg.Admin.Username,
		cfg.Admin.PasswordHash,
		tokenService,
		cfg.JWT.AccessTokenTTL,
	)

	// Initialize handlers
	dispatchHandler := handlers.NewDispatchHandler(dispatchFlow)
	instanceHandler := handlers.NewInstanceHandler(poolFlow, balancerFlow)
	providerHandler := handlers.NewGatewayProviderHandler(registryFlow)
	adminHandler := handlers.NewAdminHandler(adminAuthFlow, resetFlow, cfg.Reset.Timezone)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		dispatchHandler,
		instanceHandler,
		providerHandler,
		adminHandler,
		authMiddleware,
	)

	// Start the daily reset scheduler
	sched := scheduler.NewResetScheduler(resetFlow, cfg.Reset.TickInterval)
	stopScheduler := sched.Start(context.Background())
	stopFuncs = append(stopFuncs, stopScheduler)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
