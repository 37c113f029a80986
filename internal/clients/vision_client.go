/**
 * Vision LLM Client
 *
 * Sends (image bytes, prompt) to the remote vision endpoint as multipart
 * form data and returns the parsed JSON body unmodified. Failures are
 * categorized (timeout / connection / HTTP / invalid response) and
 * retried with backoff where retrying can help.
 *
 * The endpoint contract requires well-formed JSON; a 2xx body that does
 * not parse is REMOTE_INVALID_RESPONSE, never scanned for embedded JSON.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/logging"
)

// VisionConfig holds vision client configuration
type VisionConfig struct {
	BaseURL    string
	AuthToken  string // optional: Authorization: Bearer <token>
	APIKey     string // optional: X-API-Key header
	Timeout    time.Duration
	MaxRetries int
}

// VisionClient handles communication with the remote vision model API
type VisionClient struct {
	config     VisionConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// NewVisionClient creates a new vision client
func NewVisionClient(cfg VisionConfig) *VisionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &VisionClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewLogger("VisionClient"),
	}
}

// ExtractSchema posts the form image and prompt and returns the model's
// parsed JSON response without interpretation. Retries are bounded by
// MaxRetries and only attempted for timeouts, connection failures, 429,
// and 5xx statuses.
func (c *VisionClient) ExtractSchema(ctx context.Context, jobID string, imageData []byte, promptText string) (map[string]interface{}, error) {
	c.logger.Info("Calling vision API",
		"jobID", jobID,
		"imageBytes", len(imageData),
		"promptChars", len(promptText))

	var result map[string]interface{}

	err := retry.Do(
		func() error {
			parsed, err := c.callOnce(ctx, jobID, imageData, promptText)
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
			c.logger.Warn("Vision call failed, retrying",
				"jobID", jobID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Vision API call complete", "jobID", jobID)
	return result, nil
}

func (c *VisionClient) callOnce(ctx context.Context, jobID string, imageData []byte, promptText string) (map[string]interface{}, error) {
	body, contentType, err := buildMultipartBody(imageData, promptText)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
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

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		c.logger.Warn("Unexpected response content type", "jobID", jobID, "contentType", ct)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.NewRemoteError(errors.ErrorRemoteInvalidResponse, jobID,
			"remote API returned a non-JSON body", err)
	}

	return parsed, nil
}

// buildMultipartBody assembles the `image` + `prompt` form expected by
// the vision endpoint. The part must be rebuilt per attempt since the
// reader is consumed. Direct-text documents carry no raster image; the
// image part is omitted and the endpoint works from the prompt alone.
func buildMultipartBody(imageData []byte, promptText string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if len(imageData) > 0 {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="form.jpg"`)
		header.Set("Content-Type", "image/jpeg")
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(imageData); err != nil {
			return nil, "", err
		}
	}

	if err := writer.WriteField("prompt", promptText); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
