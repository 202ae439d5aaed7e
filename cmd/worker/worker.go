package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"visual-search-platform/internal/ai"
	"visual-search-platform/internal/config"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/queue"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Tracing (optional, the worker runs without a collector)
	shutdownTracer, err := telemetry.InitTracer("visual-search-worker")
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

	// Wire the ingestion stack
	photoStore := store.NewMongo(mongoClient, cfg)
	inferenceClient := ai.NewInferenceClient(cfg)
	featurePipeline := pipeline.NewPipeline(inferenceClient)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server. Ingestion jobs are long-running, so concurrency
	// stays low; each job fans out its own worker pool internally.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"critical": 6, // 60% of workers
				"default":  3, // 30% of workers
				"low":      1, // 10% of workers
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(cfg, photoStore, featurePipeline, metrics)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestCatalog, processor.ProcessIngest)

	log.Println("🚀 Starting ingestion worker...")
	log.Printf("   Queues: critical(6), default(3), low(1)")
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
