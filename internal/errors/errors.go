/**
 * Custom error types for the Form Schema Extraction Worker
 *
 * Every pipeline stage failure is reported through an ExtractionError so the
 * queue handler can persist a machine-readable code alongside the message.
 */

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorImageTooSmall     ErrorCode = "IMAGE_TOO_SMALL"
	ErrorOCREngineFailure  ErrorCode = "OCR_ENGINE_FAILURE"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Document conversion errors
	ErrorUnsupportedDocumentFormat ErrorCode = "UNSUPPORTED_DOCUMENT_FORMAT"
	ErrorDocumentConversionFailure ErrorCode = "DOCUMENT_CONVERSION_FAILURE"

	// Remote call errors
	ErrorRemoteTimeout         ErrorCode = "REMOTE_TIMEOUT"
	ErrorRemoteConnection      ErrorCode = "REMOTE_CONNECTION_ERROR"
	ErrorRemoteHTTP            ErrorCode = "REMOTE_HTTP_ERROR"
	ErrorRemoteInvalidResponse ErrorCode = "REMOTE_INVALID_RESPONSE"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ExtractionError represents a structured pipeline error
type ExtractionError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the error code of an ExtractionError anywhere in the chain,
// or an empty code when err is not structured.
func CodeOf(err error) ErrorCode {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Factory functions for common errors

func NewImageTooSmallError(jobID string, width, height, minDim int) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorImageTooSmall,
		Message:   fmt.Sprintf("Image %dx%d is below the minimum dimension of %dpx", width, height, minDim),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"width":         width,
			"height":        height,
			"min_dimension": minDim,
		},
	}
}

func NewOCREngineFailureError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorOCREngineFailure,
		Message:   "OCR engine could not process the image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedDocumentFormatError(jobID string, mimeType string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorUnsupportedDocumentFormat,
		Message:   fmt.Sprintf("Unsupported document format: %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewDocumentConversionFailureError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorDocumentConversionFailure,
		Message:   "Document could not be converted to a raster image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewRemoteError(code ErrorCode, jobID string, message string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      code,
		Message:   message,
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extraction results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ExtractionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
