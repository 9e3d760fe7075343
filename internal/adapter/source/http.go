package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/observability"
)

const sourceHTTP = "http"

// HTTPSource fetches assets from a static file host or CDN. Responses that
// carry an ETag are kept in a bounded cache and revalidated with
// If-None-Match, so an unchanged asset costs a 304.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	cache      *lruCache[cachedAsset]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

type cachedAsset struct {
	etag string
	body []byte
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration, maxCached int, metrics *observability.Metrics, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:   newLRUCache[cachedAsset](maxCached),
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch downloads baseURL/path.
func (s *HTTPSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	body, err := s.fetch(ctx, path)
	s.metrics.SourceFetchDuration.WithLabelValues(sourceHTTP).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SourceRequests.WithLabelValues(sourceHTTP, "error").Inc()
		return nil, err
	}
	s.metrics.SourceRequests.WithLabelValues(sourceHTTP, "success").Inc()
	s.metrics.SourceBytes.WithLabelValues(sourceHTTP).Add(float64(len(body)))
	return body, nil
}

func (s *HTTPSource) fetch(ctx context.Context, path string) ([]byte, error) {
	u := s.baseURL + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	cached, haveCached := s.cache.get(path)
	if haveCached {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && haveCached:
		s.logger.Debug("asset not modified", "path", path, "etag", cached.etag)
		return cached.body, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		s.cache.put(path, cachedAsset{etag: etag, body: body})
	}
	return body, nil
}
