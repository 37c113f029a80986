/**
 * Form Schema Extraction Worker - Main Entry Point
 *
 * Go worker that turns scanned forms into structured extraction prompts.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed job queue
 * - Image normalization and binarization pipeline
 * - Tesseract OCR with confidence-based token filtering
 * - Deterministic prompt construction for a remote vision LLM
 * - Optional knowledge-graph extraction over OCR text chunks
 * - PostgreSQL persistence, Redis result cache, Qdrant similar-form index
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formlens/schema-worker/internal/clients"
	"github.com/formlens/schema-worker/internal/config"
	"github.com/formlens/schema-worker/internal/document"
	"github.com/formlens/schema-worker/internal/graph"
	"github.com/formlens/schema-worker/internal/ocr"
	"github.com/formlens/schema-worker/internal/pipeline"
	"github.com/formlens/schema-worker/internal/queue"
	"github.com/formlens/schema-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Form schema extraction worker starting...")
	log.Printf("Configuration loaded: Redis=%s, PostgreSQL=%s, Qdrant=%s, Workers=%d",
		cfg.RedisURL, cfg.DatabaseURL, cfg.QdrantURL, cfg.WorkerConcurrency)

	// Required persistence
	postgres, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	// Optional result cache
	var cache *storage.ResultCache
	cache, err = storage.NewResultCache(cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	if err != nil {
		log.Printf("Warning: Result cache disabled: %v", err)
		cache = nil
	}

	// Optional similar-form index
	var qdrant *storage.QdrantClient
	if cfg.QdrantURL != "" {
		qdrant, err = storage.NewQdrantClient(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingVectorSize)
		if err != nil {
			log.Printf("Warning: Similar-form index disabled: %v", err)
			qdrant = nil
		}
	}

	store := storage.NewManager(postgres, cache, qdrant)
	defer store.Close()

	if err := healthCheck(postgres); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	log.Printf("Storage initialized (postgres=ok, cache=%t, qdrant=%t)", cache != nil, qdrant != nil)

	// OCR engine and extraction stages
	engine := ocr.NewTesseractEngine(cfg.TesseractLanguage)
	extractor := ocr.NewExtractor(engine)
	converter := document.NewConverter(cfg.TempDir)

	// Remote clients
	vision := clients.NewVisionClient(clients.VisionConfig{
		BaseURL:    cfg.VisionAPIURL,
		AuthToken:  cfg.VisionAuthToken,
		APIKey:     cfg.VisionAPIKey,
		Timeout:    time.Duration(cfg.APITimeoutSeconds) * time.Second,
		MaxRetries: cfg.APIMaxRetries,
	})

	var embedder pipeline.Embedder
	if cfg.EmbeddingsAPIURL != "" {
		embeddingClient, err := clients.NewEmbeddingClient(cfg.EmbeddingsAPIURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel)
		if err != nil {
			log.Printf("Warning: Embeddings disabled: %v", err)
		} else {
			embedder = embeddingClient
		}
	}

	var graphs *graph.Pipeline
	if cfg.CompletionAPIURL != "" {
		completion := clients.NewCompletionClient(clients.CompletionConfig{
			BaseURL:    cfg.CompletionAPIURL,
			Username:   cfg.CompletionAPIUser,
			Password:   cfg.CompletionAPIPassword,
			Model:      cfg.CompletionModel,
			Timeout:    time.Duration(cfg.APITimeoutSeconds) * time.Second,
			MaxRetries: cfg.APIMaxRetries,
		})
		graphs = graph.NewPipeline(completion, cfg.ChunkSize)
		log.Printf("Knowledge-graph extraction enabled (chunk_size=%d)", cfg.ChunkSize)
	} else {
		log.Printf("Knowledge-graph extraction disabled (COMPLETION_API_URL not set)")
	}

	orchestrator := pipeline.NewOrchestrator(cfg, extractor, converter, vision, embedder, store)

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         "formlens:jobs",
		Concurrency:       cfg.WorkerConcurrency,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	}, orchestrator, graphs, store)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Form schema extraction worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: formlens:jobs")
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("OCR confidence threshold: %d", cfg.ConfidenceThreshold)
	log.Printf("Enhanced preprocessing: %t", cfg.EnhancedPreprocessing)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	log.Printf("Shutdown complete")
}

// healthCheck verifies the required backends are reachable
func healthCheck(db *storage.PostgresClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
