package sources

import (
	"fmt"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/httpclient"
	"github.com/zimshelf/zim-library/internal/versions"
)

// defaultSourceFactory is the default implementation of SourceFactory
type defaultSourceFactory struct {
	cache httpclient.Cache
}

var _ SourceFactory = (*defaultSourceFactory)(nil)

// NewSourceFactory creates a source factory. A nil cache disables response
// caching for API sources.
func NewSourceFactory(cache httpclient.Cache) SourceFactory {
	return &defaultSourceFactory{cache: cache}
}

// CreateSource creates the source selected by cfg
func (f *defaultSourceFactory) CreateSource(cfg *config.CatalogConfig) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog configuration cannot be nil")
	}

	switch cfg.GetType() {
	case config.CatalogTypeFile:
		return NewFileSource(cfg.File.Path)
	case config.CatalogTypeAPI:
		opts := []httpclient.Option{httpclient.WithUserAgent(versions.UserAgent())}
		if f.cache != nil {
			opts = append(opts, httpclient.WithCache(f.cache, cfg.GetCacheTTL()))
		}
		client := httpclient.NewDefaultClient(cfg.GetTimeout(), opts...)
		return NewAPISource(client, cfg.GetURL())
	default:
		return nil, fmt.Errorf("unsupported catalog source type: %s", cfg.GetType())
	}
}
