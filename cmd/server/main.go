package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/config"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/database"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/estimator"
	quoteEvents "github.com/Kilat-Pet-Delivery/service-quote/internal/events"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/geocoding"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/handler"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/health"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/kafka"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/logger"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/middleware"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/repository"
)

const serviceName = "service-quote"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-quote",
		zap.String("port", cfg.Port),
		zap.String("estimator", cfg.Estimator.Strategy),
		zap.String("geocoder", cfg.Geocoding.Provider),
	)

	// Connect to database
	db, err := database.Connect(cfg.DB.DSN(), log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.ZoneModel{}, &repository.ZoneFareModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DB.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize Redis geocode cache
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
	}

	// Initialize address resolver
	geocoder, err := geocoding.NewFromConfig(cfg.Geocoding, redisClient, cfg.Redis.TTL, log)
	if err != nil {
		log.Fatal("failed to create geocoder", zap.Error(err))
	}
	resolver := geocoding.NewResolver(geocoder, cfg.Geocoding.Timeout, log)

	// Initialize route estimator
	zoneRepo := repository.NewGormZoneRepository(db)
	routeEstimator, err := estimator.New(cfg.Estimator, zoneRepo, log)
	if err != nil {
		log.Fatal("failed to create route estimator", zap.Error(err))
	}

	// Initialize quote engine
	engine, err := quote.NewEngine(quote.NewStandardPricingStrategy(), cfg.Pricing)
	if err != nil {
		log.Fatal("failed to create quote engine", zap.Error(err))
	}

	// Initialize quote submission
	var submitter application.QuoteSubmitter
	switch cfg.Submission.Transport {
	case "amqp":
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer func() { _ = conn.Close() }()

		publisher, err := quoteEvents.NewAMQPQuotePublisher(conn)
		if err != nil {
			log.Fatal("failed to set up rabbitmq publisher", zap.Error(err))
		}
		submitter = publisher
	default:
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		submitter = quoteEvents.NewKafkaQuotePublisher(kafkaProducer, log)
	}

	// Initialize application services
	sessionService := application.NewSessionService(
		application.Dependencies{
			Resolver:  resolver,
			Estimator: routeEstimator,
			Engine:    engine,
			Submitter: submitter,
		},
		application.MapSettings{
			Center: cfg.Map.Center(),
			Zoom:   cfg.Map.Zoom,
			Bounds: cfg.Map.Bounds,
		},
		log,
	)
	adminService := application.NewAdminService(zoneRepo, engine, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sessionService.StartReaper(ctx, cfg.Session.ReapInterval, cfg.Session.IdleTTL)

	// Initialize and start rate event consumer in a goroutine
	groupID := cfg.Kafka.GroupPrefix + "quote-service"
	rateConsumer := quoteEvents.NewRateEventConsumer(
		cfg.Kafka.Brokers,
		groupID,
		engine,
		log,
	)
	defer func() { _ = rateConsumer.Close() }()

	go func() {
		log.Info("starting rate event consumer")
		if err := rateConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("rate event consumer error", zap.Error(err))
		}
	}()

	// Initialize HTTP handlers
	sessionHandler := handler.NewSessionHandler(sessionService)
	adminHandler := handler.NewAdminHandler(adminService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, redisClient, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register routes
	sessionHandler.RegisterRoutes(&router.RouterGroup)
	adminHandler.RegisterRoutes(&router.RouterGroup)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-quote...")

	// Stop the consumer and the reaper
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	// Tear down the remaining map sessions
	sessionService.Shutdown()

	log.Info("service-quote stopped")
}
