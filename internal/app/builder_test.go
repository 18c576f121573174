package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/text/language"

	storagemocks "github.com/zimshelf/zim-library/internal/app/storage/mocks"
	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/status"
)

const testCatalog = `<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><id>urn:uuid:A</id><title>Alpha</title><language>eng</language></entry>
  <entry><id>urn:uuid:B</id><title>Beta</title><language>fra</language></entry>
</feed>`

// createTestConfig returns a config reading the catalog from a temp file
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.xml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0600))

	return &config.Config{
		DataDir: filepath.Join(dir, "data"),
		Server:  config.ServerConfig{Address: "127.0.0.1:0"},
		Catalog: config.CatalogConfig{
			File: &config.FileConfig{Path: catalogPath},
		},
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		_, err := baseConfig()
		require.Error(t, err)
	})

	t.Run("address from config", func(t *testing.T) {
		t.Parallel()
		built, err := baseConfig(WithConfig(&config.Config{Server: config.ServerConfig{Address: ":9191"}}))
		require.NoError(t, err)
		assert.Equal(t, ":9191", built.address)
		assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	})

	t.Run("default address", func(t *testing.T) {
		t.Parallel()
		built, err := baseConfig(WithConfig(&config.Config{}))
		require.NoError(t, err)
		assert.Equal(t, config.DefaultServerAddress, built.address)
	})

	t.Run("address option wins", func(t *testing.T) {
		t.Parallel()
		built, err := baseConfig(
			WithConfig(&config.Config{Server: config.ServerConfig{Address: ":9191"}}),
			WithAddress(":8888"),
		)
		require.NoError(t, err)
		assert.Equal(t, ":8888", built.address)
	})
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":9090"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "ip and port", addr: "127.0.0.1:8080"},
		{name: "empty", addr: "", wantErr: true},
		{name: "missing port", addr: ":", wantErr: true},
		{name: "no colon", addr: "8080", wantErr: true},
		{name: "invalid port", addr: ":http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &libraryAppConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestNewLibraryApp_SyncsCatalogFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := createTestConfig(t)
	app, err := NewLibraryApp(ctx, WithConfig(cfg), WithLocale(language.French))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	components := app.Components()
	handle, err := components.SyncCoordinator.Submit(false)
	require.NoError(t, err)

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not finish")
	}
	result, ok := handle.Result()
	require.True(t, ok)
	require.Nil(t, result.Err)
	assert.True(t, result.HadUpdates)

	packages, err := components.Store.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, packages, 2)

	current, err := components.Settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fr"}, current.FilterLanguageCodes)
	assert.NotNil(t, current.LastSyncTimestamp)

	s, err := components.Status.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, s.Phase)
	assert.Equal(t, 2, s.PackageCount)

	assert.FileExists(t, cfg.GetStorePath())
	assert.FileExists(t, cfg.GetSettingsPath())
	assert.FileExists(t, cfg.GetStatusPath())
}

func TestNewLibraryApp_StoreErrorCleansUp(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().CreateStore(gomock.Any()).Return(nil, errors.New("disk full"))
	factory.EXPECT().Cleanup().Times(1)

	_, err := NewLibraryApp(context.Background(),
		WithConfig(createTestConfig(t)),
		WithStorageFactory(factory))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewLibraryApp_InvalidCatalogSource(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t)
	cfg.Catalog.File.Path = ""

	_, err := NewLibraryApp(context.Background(), WithConfig(cfg))
	require.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, closeFn, err := OpenStore(ctx, createTestConfig(t))
	require.NoError(t, err)
	defer closeFn()

	packages, err := s.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, packages)
}
