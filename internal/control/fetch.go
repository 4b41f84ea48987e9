package control

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/snapflow/capshot/internal/resilience"
	"github.com/snapflow/capshot/internal/resilience/classify"
)

// fetchOperation builds the unreliable unit of work the probe runs for
// one target: a plain GET whose failures carry enough shape for the
// classifier.
func fetchOperation(client *http.Client, url string) resilience.Operation {
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("request failed reading body: %w", err)
		}

		if resp.StatusCode >= 400 {
			return nil, statusError(resp.StatusCode, url)
		}

		return body, nil
	}
}

// statusError pre-classifies HTTP failures so the retry executor does
// not have to guess from the message.
func statusError(status int, url string) error {
	err := fmt.Errorf("GET %s returned %d", url, status)

	cerr := &classify.ClassifiedError{
		Err:        err,
		StatusCode: status,
		Context:    map[string]any{"url": url},
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cerr.Category = classify.CategoryAuthentication
		cerr.Retryable = false
	case status == http.StatusRequestTimeout:
		cerr.Category = classify.CategoryTimeout
		cerr.Retryable = true
	case status == http.StatusTooManyRequests || status >= 500:
		cerr.Category = classify.CategoryNetwork
		cerr.Retryable = true
	default:
		// Remaining 4xx are shaped like bad requests.
		cerr.Category = classify.CategoryNetwork
		cerr.Retryable = false
	}

	return cerr
}
