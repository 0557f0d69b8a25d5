/**
 * Direct Redis list consumer for the docproc worker.
 *
 * Compatible with enqueuers that push job ids onto a Redis LIST and keep
 * the job body in a companion hash. Simpler than asynq and protocol-free,
 * so any producer that can LPUSH can feed the worker.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/processor"
)

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	DocumentID string                 `json:"documentId,omitempty"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileBuffer []byte                 // set by UnmarshalJSON
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts the fileBuffer as a base64 string or as a Node.js
// Buffer object, so both current and legacy enqueuers keep working.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer != nil {
		switch v := aux.FileBuffer.(type) {
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
			}
			p.FileBuffer = decoded

		case map[string]interface{}:
			if bufferType, ok := v["type"].(string); ok && bufferType == "Buffer" {
				dataArray, ok := v["data"].([]interface{})
				if !ok {
					return fmt.Errorf("Buffer object missing 'data' array")
				}
				p.FileBuffer = make([]byte, len(dataArray))
				for i, val := range dataArray {
					byteVal, ok := val.(float64)
					if !ok {
						return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
					}
					p.FileBuffer[i] = byte(byteVal)
				}
			} else {
				return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
			}

		default:
			return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
		}
	}

	return nil
}

// RedisConsumer handles job consumption from a Redis list queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "docproc:documents"
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

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("starting redis queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("stopping redis queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err != errNoJobs {
					c.logger.Warn("worker error", "worker", id, "error", err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

var errNoJobs = fmt.Errorf("no jobs available")

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job id
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	// Idempotent upsert; the enqueuer may not have created the job record
	if err := c.processor.UpdateJobStatus(c.ctx, job.Payload.JobID, "processing", map[string]interface{}{
		"filename": job.Payload.Filename,
		"mimeType": job.Payload.MimeType,
	}); err != nil {
		c.logger.Warn("could not mark job processing", "job", job.Payload.JobID, "error", err)
	}

	c.updateQueueStatus(job.Payload.JobID, "processing", nil)

	c.logger.Info("processing job", "job", job.Payload.JobID, "filename", job.Payload.Filename)

	processResult, err := c.processJob(&job)
	if err != nil {
		c.logger.Error("job failed", "job", job.Payload.JobID, "error", err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), job.ID, updatedData)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			c.logger.Info("job re-queued for retry",
				"job", job.Payload.JobID, "attempt", job.Attempts, "max", job.MaxRetries)
		} else {
			c.updateQueueStatus(job.Payload.JobID, "failed", map[string]interface{}{
				"error":    err.Error(),
				"attempts": job.Attempts,
			})
			if updateErr := c.processor.UpdateJobStatus(c.ctx, job.Payload.JobID, "failed", map[string]interface{}{
				"error": err.Error(),
			}); updateErr != nil {
				c.logger.Warn("failed to persist failed status", "job", job.Payload.JobID, "error", updateErr)
			}
		}
	} else {
		c.updateQueueStatus(job.Payload.JobID, "completed", processResult)
		c.logger.Info("job completed", "job", job.Payload.JobID, "status", processResult.Status)
	}

	return nil
}

// processJob handles the actual document processing
func (c *RedisConsumer) processJob(job *RedisJobData) (*processor.ProcessResult, error) {
	request := &processor.ProcessRequest{
		JobID:      job.Payload.JobID,
		DocumentID: job.Payload.DocumentID,
		Filename:   job.Payload.Filename,
		MimeType:   job.Payload.MimeType,
		FileBuffer: job.Payload.FileBuffer,
		Metadata:   job.Payload.Metadata,
	}

	ctx := c.ctx
	if c.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.config.ProcessingTimeout)
		defer cancel()
	}

	return c.processor.ProcessDocument(ctx, request)
}

// updateQueueStatus tracks the job through the queue's Redis bookkeeping
// sets and publishes a status event for subscribers.
func (c *RedisConsumer) updateQueueStatus(jobID string, status string, result interface{}) {
	switch status {
	case "processing":
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
	case "completed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:completed", c.config.QueueName), jobID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:results", c.config.QueueName), jobID, resultData)
		}
	case "failed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:failed", c.config.QueueName), jobID)
		if result != nil {
			errorData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:errors", c.config.QueueName), jobID, errorData)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, fmt.Sprintf("%s:processing", c.config.QueueName)).Result()
	completed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:completed", c.config.QueueName)).Result()
	failed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:failed", c.config.QueueName)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
