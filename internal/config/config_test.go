package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "redis", cfg.QueueDriver)
	assert.Equal(t, "docproc:documents", cfg.QueueName)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, []string{"tesseract"}, cfg.EngineOrder)
	assert.Equal(t, 0.40, cfg.MinFieldConfidence)
	assert.Equal(t, 0.50, cfg.MinEngineConfidence)
	assert.Equal(t, 5*time.Minute, cfg.DocumentTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://queue:6380")
	t.Setenv("QUEUE_DRIVER", "asynq")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("OCR_ENGINE_ORDER", "tesseract, remote")
	t.Setenv("MIN_FIELD_CONFIDENCE", "0.25")
	t.Setenv("DOCUMENT_TIMEOUT_MS", "60000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://queue:6380", cfg.RedisURL)
	assert.Equal(t, "asynq", cfg.QueueDriver)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, []string{"tesseract", "remote"}, cfg.EngineOrder)
	assert.Equal(t, 0.25, cfg.MinFieldConfidence)
	assert.Equal(t, time.Minute, cfg.DocumentTimeout)
}

func TestLoadConfigRejectsBadDriver(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "kafka")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_DRIVER")
}

func TestLoadConfigRejectsBadConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigInvalidNumberFallsBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "lots")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestPipelineConfigTranslation(t *testing.T) {
	t.Setenv("OCR_ENGINE_ORDER", "remote,tesseract")
	t.Setenv("MIN_ENGINE_CONFIDENCE", "0.7")
	t.Setenv("MAX_REGION_PARALLELISM", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pc := cfg.PipelineConfig()
	assert.Equal(t, []string{"remote", "tesseract"}, pc.EnginePreferenceOrder)
	assert.Equal(t, 0.7, pc.MinEngineConfidence)
	assert.Equal(t, 2, pc.MaxRegionParallelism)
}
