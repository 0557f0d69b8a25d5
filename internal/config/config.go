/**
 * Configuration for the docproc worker.
 *
 * Loads configuration from environment variables. Mains call godotenv first
 * so a local .env can seed the environment in development.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docproc-worker/internal/pipeline"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// Queue driver: "redis" (list consumer) or "asynq"
	QueueDriver string
	QueueName   string

	// PostgreSQL result store; empty disables persistence
	DatabaseURL string

	// Remote OCR service; empty disables the remote engine
	RemoteOCRURL string

	// Worker configuration
	WorkerConcurrency int

	// Pipeline tuning
	EngineOrder          []string
	MinFieldConfidence   float64
	MinEngineConfidence  float64
	MaxRegionParallelism int
	DocumentTimeout      time.Duration
	Languages            []string

	// Logging
	LogLevel   string
	LogConsole bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:             getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueDriver:          getEnvOrDefault("QUEUE_DRIVER", "redis"),
		QueueName:            getEnvOrDefault("QUEUE_NAME", "docproc:documents"),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		RemoteOCRURL:         getEnvOrDefault("REMOTE_OCR_URL", ""),
		WorkerConcurrency:    getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		EngineOrder:          getEnvAsListOrDefault("OCR_ENGINE_ORDER", []string{"tesseract"}),
		MinFieldConfidence:   getEnvAsFloatOrDefault("MIN_FIELD_CONFIDENCE", 0.40),
		MinEngineConfidence:  getEnvAsFloatOrDefault("MIN_ENGINE_CONFIDENCE", 0.50),
		MaxRegionParallelism: getEnvAsIntOrDefault("MAX_REGION_PARALLELISM", 4),
		DocumentTimeout:      time.Duration(getEnvAsIntOrDefault("DOCUMENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		Languages:            getEnvAsListOrDefault("OCR_LANGUAGES", []string{"eng"}),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogConsole:           getEnvOrDefault("LOG_FORMAT", "json") == "console",
	}

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

	if c.QueueDriver != "redis" && c.QueueDriver != "asynq" {
		return fmt.Errorf("QUEUE_DRIVER must be \"redis\" or \"asynq\", got %q", c.QueueDriver)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if len(c.EngineOrder) == 0 {
		return fmt.Errorf("OCR_ENGINE_ORDER must name at least one engine")
	}

	if c.MinFieldConfidence < 0 || c.MinFieldConfidence > 1 {
		return fmt.Errorf("MIN_FIELD_CONFIDENCE must be in [0, 1], got %v", c.MinFieldConfidence)
	}

	if c.MinEngineConfidence < 0 || c.MinEngineConfidence > 1 {
		return fmt.Errorf("MIN_ENGINE_CONFIDENCE must be in [0, 1], got %v", c.MinEngineConfidence)
	}

	if c.MaxRegionParallelism < 1 {
		return fmt.Errorf("MAX_REGION_PARALLELISM must be at least 1, got %d", c.MaxRegionParallelism)
	}

	return nil
}

// PipelineConfig translates the worker environment into per-document
// pipeline settings.
func (c *Config) PipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.EnginePreferenceOrder = c.EngineOrder
	pc.MinFieldConfidence = c.MinFieldConfidence
	pc.MinEngineConfidence = c.MinEngineConfidence
	pc.MaxRegionParallelism = c.MaxRegionParallelism
	pc.DocumentTimeout = c.DocumentTimeout
	pc.Languages = c.Languages
	return pc
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

// getEnvAsFloatOrDefault gets environment variable as float or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma-separated environment variable,
// trimming whitespace and dropping empty entries.
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
