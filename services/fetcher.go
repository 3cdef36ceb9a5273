package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/resilience"
)

// Fetcher retrieves remote documents with redirect following, timeouts and
// exponential-backoff retries on transport errors.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a fetcher with the given connect+read timeout
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "fetcher"),
	}
}

// IsURL reports whether content should be fetched rather than used inline
func IsURL(content string) bool {
	return strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://")
}

// blockedHostPrefixes are rejected to keep the fetcher off internal networks
var blockedHostPrefixes = []string{"127.", "10.", "192.168.", "172.16."}

// ValidateURL rejects non-http(s) schemes and private/loopback targets
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", model.ErrValidation, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", model.ErrValidation)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: host %q not allowed", model.ErrValidation, host)
	}
	for _, prefix := range blockedHostPrefixes {
		if strings.HasPrefix(host, prefix) {
			return fmt.Errorf("%w: host %q not allowed", model.ErrValidation, host)
		}
	}
	return nil
}

// retryableFetchError reports whether an error is transport- or
// timeout-shaped; HTTP status failures are never retried here.
func retryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps dial/read failures from the transport
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// Fetch downloads the document at the given URL under the retry policy
// (attempts = 1 + maxRetries, base 1s, factor 2, cap 30s, ±20% jitter).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxRetries int) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	policy := resilience.DefaultFetchPolicy(maxRetries)
	policy.Retryable = retryableFetchError

	var body []byte
	attempt := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "docuquery-ingest/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			f.logger.Warn("fetch attempt failed", "url", rawURL, "attempt", attempt, "err", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpStatusError{status: resp.StatusCode}
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrFetch, rawURL, err)
	}
	return body, nil
}
