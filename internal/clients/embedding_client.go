/**
 * Embedding Client
 *
 * Generates text embeddings for the similar-form lookup. Optional: when no
 * embeddings endpoint is configured the lookup is skipped entirely.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/formlens/schema-worker/internal/logging"
)

// EmbeddingClient handles embedding generation
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(baseURL, apiKey, model string) (*EmbeddingClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embeddings API URL is required")
	}
	return &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("EmbeddingClient"),
	}, nil
}

// GenerateEmbedding embeds the given text. Long inputs are truncated to
// stay under typical provider token limits.
func (e *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	const maxChars = 16000
	if len(text) > maxChars {
		e.logger.Warn("Text too long for embedding, truncating",
			"chars", len(text), "limit", maxChars)
		text = text[:maxChars]
	}

	jsonData, err := json.Marshal(embeddingRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	return parsed.Data[0].Embedding, nil
}
