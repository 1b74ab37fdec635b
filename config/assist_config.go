package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "assist"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string

	RedisURL string

	// AuditStreamMirror also appends audit records to a Redis stream.
	AuditStreamMirror bool

	// JWT
	JWTSecret string

	// RateLimitPerMinute caps /api/v1 requests per tenant.
	RateLimitPerMinute int

	// OpenAI
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	LLMModel            string
	LLMMaxTokens        int
	LLMTemperature      float64
	LLMTimeoutSec       int
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingMaxBatch   int
	EmbeddingCacheTTL   time.Duration

	// Chunker
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	ChunkCharsPerToken int

	// Retrieval
	RetrievalDefaultTopK   int
	RetrievalMaxTopK       int
	RetrievalExcerptLength int

	// Ingestion
	IngestBatchSize          int
	IngestMaxParallelBatches int
	IngestMaxUploadBytes     int

	// Blob storage
	BlobBackend     string
	BlobLocalDir    string
	AzureConnString string
	AzureContainer  string
	BlobKeyPrefix   string

	// Worker
	WorkerID        string
	WorkerCount     int
	WorkerQueueSize int
	JobTimeout      time.Duration
	JobMaxRetries   int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "assist"),

		AuditStreamMirror: getEnvBool("AUDIT_STREAM_MIRROR", true),
		RedisURL:          getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MIN", 120),

		// OpenAI
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:        getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:      getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:       getEnvInt("LLM_TIMEOUT_SEC", 60),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingMaxBatch:   getEnvInt("EMBEDDING_MAX_BATCH", 96),
		EmbeddingCacheTTL:   time.Duration(getEnvInt("EMBEDDING_CACHE_TTL_MIN", 24*60)) * time.Minute,

		// Chunker
		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 800),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 100),
		ChunkCharsPerToken: getEnvInt("CHUNK_CHARS_PER_TOKEN", 4),

		// Retrieval
		RetrievalDefaultTopK:   getEnvInt("RETRIEVAL_DEFAULT_TOP_K", 5),
		RetrievalMaxTopK:       getEnvInt("RETRIEVAL_MAX_TOP_K", 20),
		RetrievalExcerptLength: getEnvInt("RETRIEVAL_EXCERPT_LENGTH", 280),

		// Ingestion
		IngestBatchSize:          getEnvInt("INGEST_BATCH_SIZE", 64),
		IngestMaxParallelBatches: getEnvInt("INGEST_MAX_PARALLEL_BATCHES", 4),
		IngestMaxUploadBytes:     getEnvInt("INGEST_MAX_UPLOAD_BYTES", 25<<20),

		// Blob storage
		BlobBackend:     getEnv("BLOB_BACKEND", "local"),
		BlobLocalDir:    getEnv("BLOB_LOCAL_DIR", "./data/blobs"),
		AzureConnString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureContainer:  getEnv("AZURE_STORAGE_CONTAINER", "documents"),
		BlobKeyPrefix:   getEnv("BLOB_KEY_PREFIX", ""),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 100),
		JobTimeout:      time.Duration(getEnvInt("JOB_TIMEOUT_SEC", 300)) * time.Second,
		JobMaxRetries:   getEnvInt("JOB_MAX_RETRIES", 3),

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.MongoDBURL == "" {
		errs = append(errs, errors.New("MONGODB_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.EmbeddingMaxBatch <= 0 {
		errs = append(errs, errors.New("EMBEDDING_MAX_BATCH must be positive"))
	}
	if c.IngestBatchSize <= 0 || c.IngestBatchSize > c.EmbeddingMaxBatch {
		errs = append(errs, fmt.Errorf("INGEST_BATCH_SIZE must be in [1, %d]", c.EmbeddingMaxBatch))
	}
	if c.ChunkTargetTokens <= 0 || c.ChunkCharsPerToken <= 0 {
		errs = append(errs, errors.New("CHUNK_TARGET_TOKENS and CHUNK_CHARS_PER_TOKEN must be positive"))
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkTargetTokens {
		errs = append(errs, errors.New("CHUNK_OVERLAP_TOKENS must be in [0, CHUNK_TARGET_TOKENS)"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MIN must be positive"))
	}
	if c.RetrievalMaxTopK < 1 {
		errs = append(errs, errors.New("RETRIEVAL_MAX_TOP_K must be at least 1"))
	}
	if c.RetrievalDefaultTopK < 1 || c.RetrievalDefaultTopK > c.RetrievalMaxTopK {
		errs = append(errs, errors.New("RETRIEVAL_DEFAULT_TOP_K must be in [1, RETRIEVAL_MAX_TOP_K]"))
	}
	switch c.BlobBackend {
	case "local":
		if c.BlobLocalDir == "" {
			errs = append(errs, errors.New("BLOB_LOCAL_DIR is required for the local backend"))
		}
	case "azure":
		if c.AzureConnString == "" {
			errs = append(errs, errors.New("AZURE_STORAGE_CONNECTION_STRING is required for the azure backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND %q is not one of local, azure", c.BlobBackend))
	}

	return errors.Join(errs...)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
