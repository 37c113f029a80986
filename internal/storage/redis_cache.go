/**
 * Redis Result Cache
 *
 * The built prompt and the remote schema extraction are both deterministic
 * for a given (form content, confidence threshold, preprocessing mode)
 * triple, so completed results can be served from cache on re-submission
 * of the same document.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache caches completed extraction results keyed by form identity
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache creates a cache backed by the given redis URL
func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &ResultCache{client: client, ttl: ttl}, nil
}

// CacheKey builds the deterministic key for a form's extraction result
func CacheKey(formID string, confidenceThreshold int, enhancedPreprocessing bool) string {
	return fmt.Sprintf("formlens:schema:%s:%d:%t", formID, confidenceThreshold, enhancedPreprocessing)
}

// Get returns the cached result for key, or (nil, nil) on a miss
func (c *ResultCache) Get(ctx context.Context, key string) (map[string]interface{}, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		return nil, nil
	}
	return result, nil
}

// Set stores result under key with the configured TTL
func (c *ResultCache) Set(ctx context.Context, key string, result map[string]interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cached result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Close closes the redis connection
func (c *ResultCache) Close() error {
	return c.client.Close()
}
