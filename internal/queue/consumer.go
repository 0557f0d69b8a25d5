/**
 * Asynq queue consumer for the docproc worker.
 *
 * Consumes document jobs submitted through asynq. Used when the enqueuer
 * speaks the asynq task protocol; the plain Redis list consumer covers
 * everything else.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/processor"
)

// TaskProcessDocument is the asynq task type for document jobs.
const TaskProcessDocument = "process-document"

// JobData represents the structure of a queued document job
type JobData struct {
	JobID      string                 `json:"jobId"`
	DocumentID string                 `json:"documentId,omitempty"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileBuffer []byte                 `json:"fileBuffer,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Consumer handles job consumption via asynq
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff capped at a minute
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing error",
					"type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	mux.HandleFunc(TaskProcessDocument, consumer.handleProcessDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting asynq consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("queue consumer error", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("stopping asynq consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	return nil
}

// handleProcessDocument processes a document processing job
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	started := time.Now()

	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	c.logger.Info("job received",
		"job", jobData.JobID, "filename", jobData.Filename,
		"bytes", len(jobData.FileBuffer))

	if err := c.processor.UpdateJobStatus(ctx, jobData.JobID, "processing", nil); err != nil {
		c.logger.Warn("failed to mark job processing", "job", jobData.JobID, "error", err)
	}

	processCtx := ctx
	if c.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		processCtx, cancel = context.WithTimeout(ctx, c.config.ProcessingTimeout)
		defer cancel()
	}

	result, err := c.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		JobID:      jobData.JobID,
		DocumentID: jobData.DocumentID,
		Filename:   jobData.Filename,
		MimeType:   jobData.MimeType,
		FileBuffer: jobData.FileBuffer,
		Metadata:   jobData.Metadata,
	})

	duration := time.Since(started)

	if err != nil {
		c.logger.Error("job failed", "job", jobData.JobID, "duration", duration, "error", err)

		if updateErr := c.processor.UpdateJobStatus(ctx, jobData.JobID, "failed", map[string]interface{}{
			"error":          err.Error(),
			"processingTime": duration.Milliseconds(),
		}); updateErr != nil {
			c.logger.Warn("failed to mark job failed", "job", jobData.JobID, "error", updateErr)
		}

		return fmt.Errorf("document processing failed: %w", err)
	}

	c.logger.Info("job completed",
		"job", jobData.JobID, "status", result.Status,
		"regions", result.RegionCount, "fields", result.FieldCount,
		"duration", duration)

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
