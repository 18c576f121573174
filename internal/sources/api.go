package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zimshelf/zim-library/internal/httpclient"
)

// apiSource fetches the catalog from an HTTP endpoint
type apiSource struct {
	httpClient httpclient.Client
	url        string
}

// NewAPISource creates a source for the catalog at url
func NewAPISource(client httpclient.Client, url string) (Source, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if url == "" {
		return nil, fmt.Errorf("catalog url cannot be empty")
	}
	return &apiSource{httpClient: client, url: url}, nil
}

// Fetch downloads the catalog document
func (s *apiSource) Fetch(ctx context.Context) (*FetchResult, error) {
	data, err := s.httpClient.Get(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog from %s: %w", s.url, err)
	}

	slog.Debug("Retrieved catalog", "url", s.url, "bytes", len(data))
	return NewFetchResult(data, s.url), nil
}

// Location returns the catalog URL
func (s *apiSource) Location() string {
	return s.url
}
