package sources

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/httpclient"
)

const catalog = `<feed xmlns="http://www.w3.org/2005/Atom"><entry><id>urn:uuid:a</id></entry></feed>`

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewFetchResult(t *testing.T) {
	t.Parallel()

	result := NewFetchResult([]byte(catalog), "/tmp/root.xml")
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(catalog))), result.Hash)
	assert.Equal(t, "/tmp/root.xml", result.Location)
	assert.Equal(t, []byte(catalog), result.Data)
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "root.xml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0600))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Location())

	var reported atomic.Int64
	ctx := httpclient.ContextWithProgress(context.Background(), func(received, _ int64) {
		reported.Store(received)
	})

	result, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(catalog), result.Data)
	assert.Equal(t, int64(len(catalog)), reported.Load())

	_, err = NewFileSource("")
	assert.Error(t, err)

	missing, err := NewFileSource(filepath.Join(t.TempDir(), "missing.xml"))
	require.NoError(t, err)
	_, err = missing.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAPISource(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/root.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(catalog))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)

	src, err := NewAPISource(client, server.URL+"/catalog/root.xml")
	require.NoError(t, err)
	result, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(catalog), result.Data)
	assert.Equal(t, server.URL+"/catalog/root.xml", result.Location)

	broken, err := NewAPISource(client, server.URL+"/missing")
	require.NoError(t, err)
	_, err = broken.Fetch(context.Background())
	require.Error(t, err)
	var httpErr *httpclient.HTTPError
	assert.ErrorAs(t, err, &httpErr)

	_, err = NewAPISource(nil, server.URL)
	assert.Error(t, err)
	_, err = NewAPISource(client, "")
	assert.Error(t, err)
}

func TestSourceFactory_CreateSource(t *testing.T) {
	t.Parallel()

	factory := NewSourceFactory(httpclient.NewMemoryCache(time.Minute))

	tests := []struct {
		name         string
		cfg          *config.CatalogConfig
		expectedType any
		wantErr      bool
	}{
		{
			name:         "default is api",
			cfg:          &config.CatalogConfig{},
			expectedType: &apiSource{},
		},
		{
			name:         "file source",
			cfg:          &config.CatalogConfig{File: &config.FileConfig{Path: "/data/root.xml"}},
			expectedType: &fileSource{},
		},
		{
			name:    "file source without path",
			cfg:     &config.CatalogConfig{File: &config.FileConfig{}},
			wantErr: true,
		},
		{
			name:    "nil config",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := factory.CreateSource(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expectedType, src)
		})
	}
}

func TestSourceFactory_APISourceUsesCache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(catalog))
	}))
	defer server.Close()

	src, err := NewSourceFactory(httpclient.NewMemoryCache(time.Minute)).
		CreateSource(&config.CatalogConfig{URL: server.URL})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewCache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.CatalogConfig
		wantType any
		wantNil  bool
		wantErr  bool
	}{
		{name: "default memory", cfg: &config.CatalogConfig{}, wantType: &httpclient.MemoryCache{}},
		{name: "none", cfg: &config.CatalogConfig{Cache: &config.CacheConfig{Type: config.CacheTypeNone}}, wantNil: true},
		{
			name:     "redis",
			cfg:      &config.CatalogConfig{Cache: &config.CacheConfig{Type: config.CacheTypeRedis, Address: "127.0.0.1:6379"}},
			wantType: &httpclient.RedisCache{},
		},
		{
			name:     "memcached",
			cfg:      &config.CatalogConfig{Cache: &config.CacheConfig{Type: config.CacheTypeMemcached, Address: "127.0.0.1:11211"}},
			wantType: &httpclient.MemcachedCache{},
		},
		{name: "unknown", cfg: &config.CatalogConfig{Cache: &config.CacheConfig{Type: "disk"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache, cleanup, err := NewCache(tt.cfg)
			require.NotNil(t, cleanup)
			defer func() { _ = cleanup() }()

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cache)
				return
			}
			assert.IsType(t, tt.wantType, cache)
		})
	}
}
