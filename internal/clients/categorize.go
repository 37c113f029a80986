/**
 * Remote failure categorization
 *
 * Transport, HTTP, and decode failures from the remote model APIs are
 * mapped onto the worker's error taxonomy at the call boundary so the
 * orchestrator only ever sees a categorized outcome.
 */

package clients

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"net/url"

	"github.com/formlens/schema-worker/internal/errors"
)

// categorizeTransportError maps a failed http.Client.Do error onto
// REMOTE_TIMEOUT or REMOTE_CONNECTION_ERROR.
func categorizeTransportError(jobID string, err error) *errors.ExtractionError {
	if goerrors.Is(err, context.DeadlineExceeded) {
		return errors.NewRemoteError(errors.ErrorRemoteTimeout, jobID,
			"remote call timed out", err)
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewRemoteError(errors.ErrorRemoteTimeout, jobID,
			"remote call timed out", err)
	}

	var urlErr *url.Error
	if goerrors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return errors.NewRemoteError(errors.ErrorRemoteTimeout, jobID,
				"remote call timed out", err)
		}
		return errors.NewRemoteError(errors.ErrorRemoteConnection, jobID,
			fmt.Sprintf("could not connect to %s", urlErr.URL), err)
	}

	return errors.NewRemoteError(errors.ErrorRemoteConnection, jobID,
		"remote call failed", err)
}

// newHTTPStatusError wraps a non-2xx response.
func newHTTPStatusError(jobID string, status int, body []byte) *errors.ExtractionError {
	snippet := string(body)
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	e := errors.NewRemoteError(errors.ErrorRemoteHTTP, jobID,
		fmt.Sprintf("remote API returned status %d", status), nil)
	e.Details = map[string]interface{}{
		"status": status,
		"body":   snippet,
	}
	return e
}

// retryableRemote reports whether the categorized error is worth another
// attempt: timeouts, connection failures, rate limiting, and server-side
// errors. Auth failures and malformed responses are not.
func retryableRemote(err error) bool {
	code := errors.CodeOf(err)
	switch code {
	case errors.ErrorRemoteTimeout, errors.ErrorRemoteConnection:
		return true
	case errors.ErrorRemoteHTTP:
		var ee *errors.ExtractionError
		if goerrors.As(err, &ee) {
			if status, ok := ee.Details["status"].(int); ok {
				return status == 429 || status >= 500
			}
		}
		return false
	default:
		return false
	}
}
