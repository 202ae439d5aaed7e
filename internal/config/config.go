package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Inference service (VGG feature extraction over HTTP)
	InferenceServiceURL string
	InferenceTimeout    int // seconds
	InferenceRPS        float64
	InferenceBurst      int
	VGGModel            string // "vgg16" or "vgg19"
	VGGLayer            string // "fc2" (4096 dims) or "pool5" (512 dims)
	VectorDimensions    int    // derived from VGGLayer

	// MongoDB Atlas Search / Vector Search
	PhotosCollection string
	SearchIndexName  string
	VectorIndexName  string

	// Ingestion defaults
	CatalogPath     string
	DownloadDir     string
	IngestWorkers   int
	IngestBatchSize int
	DownloadTimeout int // seconds per image
	DownloadRPS     float64
	KeepLocalCopy   bool
	CoverageCron    string

	// Search
	SearchLookupTimeout int // milliseconds per descriptor lookup
	DefaultTopK         int

	// HTTP rate limiting
	RateLimitReqs   int
	RateLimitWindow int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/visual_search"),
		DBName:      getEnv("DB_NAME", "visual_search"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Inference service
		InferenceServiceURL: getEnv("INFERENCE_SERVICE_URL", "http://localhost:8001"),
		InferenceTimeout:    getEnvInt("INFERENCE_TIMEOUT", 60),
		InferenceRPS:        getEnvFloat64("INFERENCE_RPS", 10),
		InferenceBurst:      getEnvInt("INFERENCE_BURST", 5),
		VGGModel:            getEnv("VGG_MODEL", "vgg16"),
		VGGLayer:            getEnv("VGG_LAYER", "fc2"),

		// Atlas Search / Vector Search
		PhotosCollection: getEnv("PHOTOS_COLLECTION", "photos"),
		SearchIndexName:  getEnv("MONGODB_SEARCH_INDEX", "photos_text"),
		VectorIndexName:  getEnv("MONGODB_VECTOR_INDEX", "photos_vector"),

		// Ingestion defaults
		CatalogPath:     getEnv("CATALOG_PATH", "./data/photo_metadata.csv"),
		DownloadDir:     getEnv("DOWNLOAD_DIR", os.TempDir()),
		IngestWorkers:   getEnvInt("INGEST_WORKERS", 8),
		IngestBatchSize: getEnvInt("INGEST_BATCH_SIZE", 100),
		DownloadTimeout: getEnvInt("DOWNLOAD_TIMEOUT", 10),
		DownloadRPS:     getEnvFloat64("DOWNLOAD_RPS", 20),
		KeepLocalCopy:   getEnvBool("KEEP_LOCAL_COPY", false),
		CoverageCron:    getEnv("COVERAGE_AUDIT_CRON", "0 3 * * *"),

		// Search
		SearchLookupTimeout: getEnvInt("SEARCH_LOOKUP_TIMEOUT_MS", 2000),
		DefaultTopK:         getEnvInt("DEFAULT_TOP_K", 10),

		// HTTP rate limiting
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
	}

	// Validate required fields
	if cfg.VGGModel != "vgg16" && cfg.VGGModel != "vgg19" {
		return nil, fmt.Errorf("VGG_MODEL must be vgg16 or vgg19, got %q", cfg.VGGModel)
	}

	switch cfg.VGGLayer {
	case "fc2":
		cfg.VectorDimensions = 4096
	case "pool5":
		cfg.VectorDimensions = 512
	default:
		return nil, fmt.Errorf("VGG_LAYER must be fc2 or pool5, got %q", cfg.VGGLayer)
	}

	if cfg.IngestWorkers < 1 {
		return nil, fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", cfg.IngestWorkers)
	}

	if cfg.IngestBatchSize < 1 {
		return nil, fmt.Errorf("INGEST_BATCH_SIZE must be at least 1, got %d", cfg.IngestBatchSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
