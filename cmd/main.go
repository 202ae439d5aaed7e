package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"visual-search-platform/internal/ai"
	"visual-search-platform/internal/config"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/ingest"
	"visual-search-platform/internal/logger"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
	"visual-search-platform/middleware"
	"visual-search-platform/routes"
	"visual-search-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Structured logging
	logger.InitLogger(cfg)

	// Tracing (optional, the server runs without a collector)
	shutdownTracer, err := telemetry.InitTracer("visual-search-platform")
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Connect to Redis (rate limiting and the job queue)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Wire the search stack
	photoStore := store.NewMongo(mongoClient, cfg)
	inferenceClient := ai.NewInferenceClient(cfg)
	featurePipeline := pipeline.NewPipeline(inferenceClient)
	searchService := services.NewSearchService(photoStore, featurePipeline, cfg)

	// Asynq client for submitting ingestion jobs
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Nightly coverage audit
	scheduler := ingest.NewScheduler(photoStore)
	if err := scheduler.ScheduleCoverageAudit(cfg.CoverageCron, descriptor.DefaultSet); err != nil {
		log.Printf("Failed to schedule coverage audit: %v", err)
	} else {
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		inferenceHealthy, _ := inferenceClient.IsHealthy(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"inference_service": inferenceHealthy,
			"timestamp":         time.Now(),
		})
	})

	// Setup routes
	routes.SetupSearchRoutes(router, cfg, searchService, photoStore, metrics)
	routes.SetupIngestRoutes(router, cfg, asynqClient, photoStore)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
