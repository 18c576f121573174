package sources

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/zimshelf/zim-library/internal/config"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go Source,SourceFactory

// Source retrieves the raw catalog document
type Source interface {
	// Fetch returns the catalog bytes. Byte progress is reported to the
	// callback installed with httpclient.ContextWithProgress, if any.
	Fetch(ctx context.Context) (*FetchResult, error)

	// Location is the URL or path the catalog is read from. Relative links
	// inside the catalog resolve against it.
	Location() string
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	// Data is the raw catalog document
	Data []byte

	// Hash is the SHA256 of Data
	Hash string

	// Location is where Data came from
	Location string
}

// NewFetchResult hashes data and wraps it in a FetchResult
func NewFetchResult(data []byte, location string) *FetchResult {
	return &FetchResult{
		Data:     data,
		Hash:     fmt.Sprintf("%x", sha256.Sum256(data)),
		Location: location,
	}
}

// SourceFactory creates a Source from catalog configuration
type SourceFactory interface {
	CreateSource(cfg *config.CatalogConfig) (Source, error)
}
