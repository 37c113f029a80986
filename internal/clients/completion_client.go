/**
 * Completion Client
 *
 * Text-completion endpoint used by the knowledge-graph pipeline. One
 * blocking JSON request per chunk over Basic auth; same failure taxonomy
 * and retry policy as the vision client.
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

	"github.com/avast/retry-go/v4"

	"github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/logging"
)

// CompletionConfig holds completion client configuration
type CompletionConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Model      string // optional; omitted from the payload when empty
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// CompletionClient handles communication with the remote completion API
type CompletionClient struct {
	config     CompletionConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// completionRequest is the JSON payload contract
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Model       string  `json:"model,omitempty"`
}

// NewCompletionClient creates a new completion client
func NewCompletionClient(cfg CompletionConfig) *CompletionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &CompletionClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewLogger("CompletionClient"),
	}
}

// Complete issues one prompt and returns the parsed JSON envelope.
// Temperature is pinned to zero: the surrounding pipeline is deterministic
// and the extraction prompts expect structured output.
func (c *CompletionClient) Complete(ctx context.Context, jobID string, promptText string) (map[string]interface{}, error) {
	var result map[string]interface{}

	err := retry.Do(
		func() error {
			parsed, err := c.callOnce(ctx, jobID, promptText)
			if err != nil {
				return err
			}
			result = parsed
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.MaxRetries)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableRemote),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Completion call failed, retrying",
				"jobID", jobID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *CompletionClient) callOnce(ctx context.Context, jobID string, promptText string) (map[string]interface{}, error) {
	payload, err := json.Marshal(completionRequest{
		Prompt:      promptText,
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0,
		Model:       c.config.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, categorizeTransportError(jobID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, categorizeTransportError(jobID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(jobID, resp.StatusCode, respBody)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.NewRemoteError(errors.ErrorRemoteInvalidResponse, jobID,
			"completion API returned a non-JSON body", err)
	}

	return parsed, nil
}
