package database

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

var (
	dbName = "testdb"
	dbUser = "testuser"
	dbPass = "testpass"
)

// SetupTestDBContainer starts a Postgres container and returns its connection
// string without applying any migration. The test is skipped when no
// container provider is available.
func SetupTestDBContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	tc.SkipIfProviderIsNotHealthy(t)

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanupFunc := func() {
		tc.CleanupContainer(t, postgresContainer)
	}

	return connStr, cleanupFunc
}

// SetupTestDB starts a Postgres container, migrates it to the latest schema
// and returns a connection pool for it
func SetupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()
	connStr, cleanupContainer := SetupTestDBContainer(t, ctx)

	m, err := NewFromConnectionString(connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	_, _ = m.Close()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanupFunc := func() {
		pool.Close()
		cleanupContainer()
	}

	return pool, cleanupFunc
}
