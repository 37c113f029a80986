/**
 * Queue Consumer for the Form Schema Extraction Worker
 *
 * Consumes extraction jobs from Redis via Asynq. Two task types are
 * served: extraction:form_schema and extraction:knowledge_graph. Each
 * job runs under a per-job timeout; a deadline hit is persisted as a
 * PROCESSING_TIMEOUT failure.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	apperrors "github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/graph"
	"github.com/formlens/schema-worker/internal/pipeline"
	"github.com/formlens/schema-worker/internal/storage"
)

const (
	TaskFormSchema     = "extraction:form_schema"
	TaskKnowledgeGraph = "extraction:knowledge_graph"
)

// JobData represents the structure of job data from the enqueuing API
type JobData struct {
	JobID               string                 `json:"jobId"`
	Filename            string                 `json:"filename"`
	MimeType            string                 `json:"mimeType,omitempty"`
	FileSize            int64                  `json:"fileSize,omitempty"`
	FileBuffer          []byte                 // set by custom UnmarshalJSON
	ConfidenceThreshold int                    `json:"confidenceThreshold,omitempty"`
	EnhancedPreprocess  *bool                  `json:"enhancedPreprocessing,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON handles the fileBuffer field, which arrives either as a
// base64 string or as a Node.js Buffer object from older producers
func (j *JobData) UnmarshalJSON(data []byte) error {
	type Alias JobData
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(j),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		j.FileBuffer = decoded
	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		j.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			j.FileBuffer[i] = byte(byteVal)
		}
	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client       *asynq.Client
	server       *asynq.Server
	mux          *asynq.ServeMux
	orchestrator *pipeline.Orchestrator
	graphs       *graph.Pipeline
	store        *storage.Manager
	config       *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout int64 // milliseconds, default 300000
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig, orchestrator *pipeline.Orchestrator, graphs *graph.Pipeline, store *storage.Manager) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "formlens:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
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
				// Exponential backoff capped at one minute
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:       client,
		server:       server,
		mux:          mux,
		orchestrator: orchestrator,
		graphs:       graphs,
		store:        store,
		config:       cfg,
	}

	mux.HandleFunc(TaskFormSchema, consumer.handleFormSchema)
	mux.HandleFunc(TaskKnowledgeGraph, consumer.handleKnowledgeGraph)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start() error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop() error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	log.Printf("Queue consumer stopped")
	return nil
}

func (c *Consumer) handleFormSchema(ctx context.Context, task *asynq.Task) error {
	return c.handleJob(ctx, task, func(jobCtx context.Context, req *pipeline.Request) (*pipeline.Result, error) {
		return c.orchestrator.ProcessFormSchema(jobCtx, req)
	})
}

func (c *Consumer) handleKnowledgeGraph(ctx context.Context, task *asynq.Task) error {
	if c.graphs == nil {
		return fmt.Errorf("knowledge graph extraction is not configured")
	}
	return c.handleJob(ctx, task, func(jobCtx context.Context, req *pipeline.Request) (*pipeline.Result, error) {
		return c.orchestrator.ProcessKnowledgeGraph(jobCtx, req, c.graphs)
	})
}

func (c *Consumer) handleJob(ctx context.Context, task *asynq.Task, run func(context.Context, *pipeline.Request) (*pipeline.Result, error)) error {
	startTime := time.Now()

	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if jobData.JobID == "" {
		jobData.JobID = uuid.New().String()
		log.Printf("[Job %s] Job arrived without ID, assigned one", jobData.JobID)
	}
	if len(jobData.FileBuffer) == 0 {
		return fmt.Errorf("job %s has no file buffer", jobData.JobID)
	}

	log.Printf("[Job %s] Processing %s: filename=%s, size=%d bytes",
		jobData.JobID, task.Type(), jobData.Filename, len(jobData.FileBuffer))

	c.persistStatus(ctx, &storage.JobUpdate{
		JobID:    jobData.JobID,
		Status:   "processing",
		Filename: jobData.Filename,
		MimeType: jobData.MimeType,
		Metadata: jobData.Metadata,
	})

	timeout := 300000 * time.Millisecond
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &pipeline.Request{
		JobID:               jobData.JobID,
		Filename:            jobData.Filename,
		MimeType:            jobData.MimeType,
		Data:                jobData.FileBuffer,
		ConfidenceThreshold: jobData.ConfidenceThreshold,
		EnhancedPreprocess:  jobData.EnhancedPreprocess,
	}

	result, err := run(jobCtx, req)
	duration := time.Since(startTime)

	if err != nil {
		if jobCtx.Err() == context.DeadlineExceeded {
			err = apperrors.NewProcessingTimeoutError(jobData.JobID, timeout, err)
		}
		log.Printf("[Job %s] Processing failed after %v: %v", jobData.JobID, duration, err)

		update := &storage.JobUpdate{
			JobID:            jobData.JobID,
			Status:           "failed",
			Filename:         jobData.Filename,
			MimeType:         jobData.MimeType,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorCode:        string(apperrors.CodeOf(err)),
			ErrorMessage:     err.Error(),
		}
		if result != nil {
			update.FormID = result.FormID
			update.TokenCount = result.TokenCount
		}
		c.persistStatus(ctx, update)

		return fmt.Errorf("extraction failed: %w", err)
	}

	status := pipeline.StateOf(result)
	log.Printf("[Job %s] %s in %v: tokens=%d, cached=%t",
		jobData.JobID, status, duration, result.TokenCount, result.FromCache)

	c.persistStatus(ctx, &storage.JobUpdate{
		JobID:            jobData.JobID,
		Status:           status,
		Filename:         jobData.Filename,
		MimeType:         jobData.MimeType,
		FormID:           result.FormID,
		TokenCount:       result.TokenCount,
		ProcessingTimeMs: duration.Milliseconds(),
		Result:           result.Payload,
		Metadata:         resultMetadata(result),
	})

	return nil
}

// persistStatus writes a job update. A storage failure is logged but never
// fails the job; the queue is the source of truth for retries.
func (c *Consumer) persistStatus(ctx context.Context, update *storage.JobUpdate) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateJobStatus(ctx, update); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to %s: %v", update.JobID, update.Status, err)
	}
}

func resultMetadata(result *pipeline.Result) map[string]interface{} {
	meta := map[string]interface{}{
		"from_cache": result.FromCache,
	}
	if len(result.Warnings) > 0 {
		meta["warnings"] = result.Warnings
	}
	if len(result.SimilarForms) > 0 {
		similar := make([]map[string]interface{}, 0, len(result.SimilarForms))
		for _, s := range result.SimilarForms {
			similar = append(similar, map[string]interface{}{
				"form_id": s.FormID,
				"score":   s.Score,
			})
		}
		meta["similar_forms"] = similar
	}
	return meta
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
