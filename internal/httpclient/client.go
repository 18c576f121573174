// Package httpclient fetches catalog documents over HTTP with a size cap and
// an optional response cache.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single catalog request
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps the body read from the network
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is sent with every request unless WithUserAgent overrides it
	UserAgent = "zim-library/1.0"

	// AcceptCatalog is the media type requested from the catalog endpoint
	AcceptCatalog = "application/atom+xml"
)

// Client fetches a document by URL
type Client interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Option configures the default client
type Option func(*defaultClient)

// WithCache serves responses from cache while fresh and stores network
// responses for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *defaultClient) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *defaultClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTransport overrides the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *defaultClient) {
		c.httpClient.Transport = rt
	}
}

type progressKey struct{}

// ContextWithProgress attaches a progress callback that Get reports body
// reads to.
func ContextWithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFromContext returns the callback installed by ContextWithProgress
func ProgressFromContext(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}

type defaultClient struct {
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	userAgent  string
}

// NewDefaultClient creates a client with the given timeout; zero selects
// DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &defaultClient{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  UserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache != nil && c.cacheTTL <= 0 {
		c.cacheTTL = DefaultCacheTTL
	}
	return c
}

// Get performs a GET request and returns the body
func (c *defaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	progress := ProgressFromContext(ctx)

	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, cacheKey(url))
		if err != nil {
			slog.Warn("Catalog cache lookup failed", "url", url, "error", err)
		} else if ok {
			slog.Debug("Serving catalog from cache", "url", url, "bytes", len(cached))
			if progress != nil {
				progress(int64(len(cached)), int64(len(cached)))
			}
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", AcceptCatalog)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, NewHTTPError(resp.StatusCode, url, string(body))
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, sizeError(resp.ContentLength)
	}

	var reader io.Reader = io.LimitReader(resp.Body, MaxResponseSize+1)
	if progress != nil {
		reader = &progressReader{r: reader, total: resp.ContentLength, fn: progress}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, sizeError(int64(len(body)))
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(url), body, c.cacheTTL); err != nil {
			slog.Warn("Failed to store catalog in cache", "url", url, "error", err)
		}
	}
	return body, nil
}

func sizeError(size int64) error {
	return fmt.Errorf("response size %d bytes exceeds maximum allowed size of %.2f MB",
		size, float64(MaxResponseSize)/(1024*1024))
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}
