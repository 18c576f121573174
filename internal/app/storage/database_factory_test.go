package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimshelf/zim-library/database"
	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/store"
)

// databaseConfigFor turns a container connection string into the config block
func databaseConfigFor(t *testing.T, connStr string) *config.DatabaseConfig {
	t.Helper()

	parsed, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte(parsed.ConnConfig.Password+"\n"), 0600))

	return &config.DatabaseConfig{
		Host:         parsed.ConnConfig.Host,
		Port:         int(parsed.ConnConfig.Port),
		User:         parsed.ConnConfig.User,
		Database:     parsed.ConnConfig.Database,
		PasswordFile: passwordFile,
		SSLMode:      "disable",
		MaxOpenConns: 4,
	}
}

func TestDatabaseFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	connStr, cleanup := database.SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanup)

	cfg := &config.Config{
		Storage:  config.StorageConfig{Type: config.StorageTypePostgres},
		Database: databaseConfigFor(t, connStr),
	}

	factory, err := NewStorageFactory(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(factory.Cleanup)

	s, err := factory.CreateStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.CurrentSchemaVersion, version)

	require.NoError(t, s.Put(ctx, &library.Package{ID: "a", Title: "Alpha", LocalState: library.LocalState{State: library.StateRemoteOnly}}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
}

func TestNewDatabaseFactory_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("secret"), 0600))

	tests := []struct {
		name    string
		cfg     *config.Config
		opts    []DatabaseFactoryOption
		wantErr string
	}{
		{
			name:    "nil config",
			wantErr: "config cannot be nil",
		},
		{
			name:    "missing database block",
			cfg:     &config.Config{},
			wantErr: "database configuration is required",
		},
		{
			name: "missing password",
			cfg: &config.Config{Database: &config.DatabaseConfig{
				Host: "localhost", Port: 5432, User: "u", Database: "d",
				PasswordFile: filepath.Join(t.TempDir(), "missing"),
			}},
			wantErr: "failed to read password",
		},
		{
			name: "invalid connection lifetime",
			cfg: &config.Config{Database: &config.DatabaseConfig{
				Host: "localhost", Port: 5432, User: "u", Database: "d",
				PasswordFile: passwordFile, ConnMaxLifetime: "forever",
			}},
			wantErr: "connMaxLifetime",
		},
		{
			name: "unreachable database",
			cfg: &config.Config{Database: &config.DatabaseConfig{
				Host: "127.0.0.1", Port: 1, User: "u", Database: "d",
				PasswordFile: passwordFile, SSLMode: "disable",
			}},
			opts:    []DatabaseFactoryOption{WithConnectTimeout(200 * time.Millisecond)},
			wantErr: "failed to reach database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewDatabaseFactory(ctx, tt.cfg, tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
