/**
 * Configuration for the Form Schema Extraction Worker
 *
 * Loads configuration from environment variables matching .env
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Accepted band for the OCR confidence threshold, enforced both on the
// configured default and on per-job overrides.
const (
	MinConfidenceThreshold = 30
	MaxConfidenceThreshold = 90
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (queue + result cache)
	RedisURL string

	// PostgreSQL configuration (job persistence)
	DatabaseURL string

	// Qdrant vector database configuration (similar-form lookup, optional)
	QdrantURL        string
	QdrantCollection string

	// Remote Vision LLM API
	VisionAPIURL    string
	VisionAuthToken string
	VisionAPIKey    string

	// Remote completion API (knowledge-graph variant), Basic auth
	CompletionAPIURL      string
	CompletionAPIUser     string
	CompletionAPIPassword string
	CompletionModel       string

	// Embeddings endpoint (optional; enables similar-form lookup)
	EmbeddingsAPIURL    string
	EmbeddingsAPIKey    string
	EmbeddingsModel     string
	EmbeddingVectorSize int

	// Scratch space for PDF rasterization
	TempDir string

	// Remote call behavior
	APITimeoutSeconds int
	APIMaxRetries     int

	// OCR pipeline
	ConfidenceThreshold   int
	EnhancedPreprocessing bool
	TesseractLanguage     string

	// Image bounds
	MinImageDimension int
	MaxImagePixels    int
	MaxImageDimension int

	// Knowledge-graph variant
	ChunkSize int

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds

	// Result cache
	CacheTTLSeconds int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:              getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:           getEnvOrThrow("DATABASE_URL"),
		QdrantURL:             getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:      getEnvOrDefault("QDRANT_COLLECTION", "formlens_forms"),
		VisionAPIURL:          getEnvOrDefault("VISION_LLM_API_URL", "http://localhost:8000/api/vision"),
		VisionAuthToken:       getEnvOrDefault("VISION_LLM_AUTH_TOKEN", ""),
		VisionAPIKey:          getEnvOrDefault("VISION_LLM_API_KEY", ""),
		CompletionAPIURL:      getEnvOrDefault("COMPLETION_API_URL", ""),
		CompletionAPIUser:     getEnvOrDefault("COMPLETION_API_USER", ""),
		CompletionAPIPassword: getEnvOrDefault("COMPLETION_API_PASSWORD", ""),
		CompletionModel:       getEnvOrDefault("COMPLETION_MODEL", ""),
		EmbeddingsAPIURL:      getEnvOrDefault("EMBEDDINGS_API_URL", ""),
		EmbeddingsAPIKey:      getEnvOrDefault("EMBEDDINGS_API_KEY", ""),
		EmbeddingsModel:       getEnvOrDefault("EMBEDDINGS_MODEL", "voyage-2"),
		EmbeddingVectorSize:   getEnvAsIntOrDefault("EMBEDDING_VECTOR_SIZE", 1024),
		TempDir:               getEnvOrDefault("TEMP_DIR", "/tmp/formlens"),
		APITimeoutSeconds:     getEnvAsIntOrDefault("API_TIMEOUT", 30),
		APIMaxRetries:         getEnvAsIntOrDefault("API_MAX_RETRIES", 3),
		ConfidenceThreshold:   getEnvAsIntOrDefault("OCR_CONFIDENCE_THRESHOLD", 60),
		EnhancedPreprocessing: getEnvAsBoolOrDefault("ENHANCED_PREPROCESSING", true),
		TesseractLanguage:     getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		MinImageDimension:     getEnvAsIntOrDefault("MIN_IMAGE_DIMENSION", 100),
		MaxImagePixels:        getEnvAsIntOrDefault("MAX_IMAGE_PIXELS", 50_000_000),
		MaxImageDimension:     getEnvAsIntOrDefault("MAX_IMAGE_DIMENSION", 3000),
		ChunkSize:             getEnvAsIntOrDefault("CHUNK_SIZE", 2000),
		WorkerConcurrency:     getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:     getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		CacheTTLSeconds:       getEnvAsIntOrDefault("CACHE_TTL_SECONDS", 86400),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.VisionAPIURL == "" {
		return fmt.Errorf("VISION_LLM_API_URL is required")
	}

	if c.ConfidenceThreshold < MinConfidenceThreshold || c.ConfidenceThreshold > MaxConfidenceThreshold {
		return fmt.Errorf("OCR_CONFIDENCE_THRESHOLD must be between %d and %d, got %d",
			MinConfidenceThreshold, MaxConfidenceThreshold, c.ConfidenceThreshold)
	}

	if c.MinImageDimension < 100 || c.MinImageDimension > 200 {
		return fmt.Errorf("MIN_IMAGE_DIMENSION must be between 100 and 200, got %d", c.MinImageDimension)
	}

	if c.MaxImageDimension < 1000 || c.MaxImageDimension > 10000 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be between 1000 and 10000, got %d", c.MaxImageDimension)
	}

	if c.APITimeoutSeconds < 1 || c.APITimeoutSeconds > 120 {
		return fmt.Errorf("API_TIMEOUT must be between 1 and 120 seconds, got %d", c.APITimeoutSeconds)
	}

	if c.APIMaxRetries < 1 || c.APIMaxRetries > 10 {
		return fmt.Errorf("API_MAX_RETRIES must be between 1 and 10, got %d", c.APIMaxRetries)
	}

	if c.ChunkSize < 200 || c.ChunkSize > 20000 {
		return fmt.Errorf("CHUNK_SIZE must be between 200 and 20000, got %d", c.ChunkSize)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
