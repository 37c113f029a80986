/**
 * Storage Manager
 *
 * Coordinates the persistence backends for the extraction worker. Postgres
 * holds the job lifecycle and is required. The redis result cache and the
 * qdrant similar-form index are optional; a nil client disables the
 * feature without affecting the pipeline.
 */

package storage

import (
	"context"

	"github.com/formlens/schema-worker/internal/logging"
)

// Manager coordinates postgres, the result cache, and the form vector index
type Manager struct {
	Postgres *PostgresClient
	Cache    *ResultCache
	Qdrant   *QdrantClient
	logger   *logging.Logger
}

// NewManager creates a storage manager. cache and qdrant may be nil.
func NewManager(postgres *PostgresClient, cache *ResultCache, qdrant *QdrantClient) *Manager {
	return &Manager{
		Postgres: postgres,
		Cache:    cache,
		Qdrant:   qdrant,
		logger:   logging.NewLogger("storage-manager"),
	}
}

// UpdateJobStatus persists a job state transition
func (m *Manager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return m.Postgres.UpdateJobStatus(ctx, update)
}

// CachedResult looks up a previously completed extraction. Cache errors are
// logged and reported as misses so a degraded redis never fails a job.
func (m *Manager) CachedResult(ctx context.Context, key string) map[string]interface{} {
	if m.Cache == nil {
		return nil
	}
	result, err := m.Cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Cache lookup failed", "key", key, "error", err)
		return nil
	}
	return result
}

// StoreResult caches a completed extraction. Best effort.
func (m *Manager) StoreResult(ctx context.Context, key string, result map[string]interface{}) {
	if m.Cache == nil {
		return
	}
	if err := m.Cache.Set(ctx, key, result); err != nil {
		m.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}

// IndexFormVector records a form embedding for later similarity lookup.
// Best effort.
func (m *Manager) IndexFormVector(ctx context.Context, formID string, vector []float32, payload map[string]interface{}) {
	if m.Qdrant == nil {
		return
	}
	if err := m.Qdrant.IndexForm(ctx, formID, vector, payload); err != nil {
		m.logger.Warn("Form vector indexing failed", "form_id", formID, "error", err)
	}
}

// FindSimilarForms returns previously seen forms ranked by embedding
// similarity, or nil when the index is disabled or unreachable
func (m *Manager) FindSimilarForms(ctx context.Context, vector []float32, limit int) []SimilarForm {
	if m.Qdrant == nil {
		return nil
	}
	results, err := m.Qdrant.SearchSimilar(ctx, vector, limit)
	if err != nil {
		m.logger.Warn("Similar-form lookup failed", "error", err)
		return nil
	}
	return results
}

// Close closes all backends
func (m *Manager) Close() {
	if m.Postgres != nil {
		if err := m.Postgres.Close(); err != nil {
			m.logger.Warn("Failed to close postgres", "error", err)
		}
	}
	if m.Cache != nil {
		if err := m.Cache.Close(); err != nil {
			m.logger.Warn("Failed to close redis", "error", err)
		}
	}
	if m.Qdrant != nil {
		if err := m.Qdrant.Close(); err != nil {
			m.logger.Warn("Failed to close qdrant", "error", err)
		}
	}
}
