// Package providers contains the adapters that fetch candidate news
// articles from external search and feed services. Each adapter reports
// whether its credentials are configured; unconfigured adapters are skipped
// silently at the aggregation level.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/v0idhrt/radar/internal/models"
)

// Provider is a callable that returns candidate articles for a company
// within an optional time window. Implementations may fail; callers treat a
// failed provider as one that yielded zero results.
type Provider interface {
	Name() string
	Configured() bool
	Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error)
}

// HTTPStatusError reports a non-success response from an upstream API.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// retryable reports whether a status code is worth retrying. Client errors
// other than 429 will not heal on their own.
func retryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// doJSON performs an HTTP request with exponential-backoff retries on
// transient failures and decodes the JSON response into out.
func doJSON(ctx context.Context, client *http.Client, build func() (*http.Request, error), maxRetries int, out any) error {
	var resp *http.Response

	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err = client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
			if !retryable(resp.StatusCode) {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, strategy); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// withinWindow reports whether ts satisfies the optional [start, end] bounds.
func withinWindow(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}
