/**
 * PostgreSQL Client for the Form Schema Extraction Worker
 *
 * Persists the job lifecycle (pending -> processing -> completed /
 * no_text_detected / failed) together with the final JSON artifact.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Filename         string
	MimeType         string
	FormID           string
	TokenCount       int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Result           map[string]interface{}
	Metadata         map[string]interface{}
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts job state. The worker may see a job before the
// enqueuing API created its row, hence the INSERT ... ON CONFLICT shape.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	resultJSON, err := marshalJSONB(update.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	metadataJSON, err := marshalJSONB(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO formlens.extraction_jobs (
			id, filename, mime_type, status, form_id, token_count,
			processing_time_ms, error_code, error_message, result, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'unknown'),
			COALESCE(NULLIF($3, ''), 'application/octet-stream'),
			$4, NULLIF($5, ''), $6,
			NULLIF($7, 0), NULLIF($8, ''), NULLIF($9, ''),
			COALESCE($10::jsonb, 'null'::jsonb), COALESCE($11::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			form_id = COALESCE(EXCLUDED.form_id, formlens.extraction_jobs.form_id),
			token_count = GREATEST(EXCLUDED.token_count, formlens.extraction_jobs.token_count),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, formlens.extraction_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			result = CASE WHEN EXCLUDED.result IS NOT NULL AND EXCLUDED.result != 'null'::jsonb
				THEN EXCLUDED.result ELSE formlens.extraction_jobs.result END,
			metadata = formlens.extraction_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		update.JobID,
		update.Filename,
		update.MimeType,
		update.Status,
		update.FormID,
		update.TokenCount,
		update.ProcessingTimeMs,
		update.ErrorCode,
		update.ErrorMessage,
		resultJSON,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	return nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	return p.db.Close()
}

var nullEscapeRe = regexp.MustCompile(`\\u0000`)

// marshalJSONB marshals for a JSONB column. PostgreSQL rejects the escaped NUL
// sequence inside JSONB, which OCR text from damaged scans can contain.
func marshalJSONB(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return nullEscapeRe.ReplaceAll(data, []byte("")), nil
}
