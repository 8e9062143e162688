package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

// DocumentFetcher returns the raw markup or text stored at a URL.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// MaxBodySize caps how much of a response is read.
const MaxBodySize = 8 << 20

// HTTPFetcher fetches documents over HTTP, at most RequestsPerSecond
// requests per second across all workers.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *logger.Logger
}

// NewHTTPFetcher builds a fetcher. rps <= 0 disables rate limiting.
func NewHTTPFetcher(timeout time.Duration, rps float64, userAgent string, log *logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		userAgent: userAgent,
		log:       log,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", &model.NetworkError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &model.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", fmt.Errorf("%s: %w", url, model.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", &model.NetworkError{URL: url, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	case resp.StatusCode != http.StatusOK:
		// Other 4xx answers will not change on retry.
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return "", &model.NetworkError{URL: url, Status: resp.StatusCode, Err: err}
	}

	f.log.Debug("fetched document", "url", url, "bytes", len(body))
	return string(body), nil
}
