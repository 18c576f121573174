package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	connString, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	m, err := NewFromConnectionString(connString)
	require.NoError(t, err)
	defer m.Close()

	// Count the number of logical migrations
	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	for i := 1; i <= len(fnames); i++ {
		// step up
		err = m.Steps(i)
		assert.NoError(t, err)

		// step down
		err = m.Steps(-i)
		assert.NoError(t, err)

		// step up again
		err = m.Steps(i)
		assert.NoError(t, err)

		// back to empty for the next round
		err = m.Steps(-i)
		assert.NoError(t, err)
	}
}

func TestMigrateTo_ConvertsLegacyRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	connString, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	m, err := NewFromConnectionString(connString)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, MigrateTo(m, 1))

	conn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		INSERT INTO package (id, pid, title, file_size, article_count, category_raw, state_raw)
		VALUES ('a', 'wiki_a', 'A', 0, 5, 'stackExchange', 'cloud'),
		       ('b', 'ted_b', 'B', 10, 0, 'ted', 'local')`)
	require.NoError(t, err)

	latest, err := LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), latest)

	require.NoError(t, MigrateTo(m, latest))
	version, err := CurrentVersion(m)
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	// a second run at the current version is a no-op
	require.NoError(t, MigrateTo(m, latest))

	var (
		shortName, category, state string
		size, articles             *int64
	)
	err = conn.QueryRow(ctx,
		`SELECT short_name, category, state, size_bytes, article_count FROM package WHERE id = 'a'`,
	).Scan(&shortName, &category, &state, &size, &articles)
	require.NoError(t, err)
	assert.Equal(t, "wiki_a", shortName)
	assert.Equal(t, "stack_exchange", category)
	assert.Equal(t, "remoteOnly", state)
	assert.Nil(t, size)
	require.NotNil(t, articles)
	assert.Equal(t, int64(5), *articles)

	err = conn.QueryRow(ctx,
		`SELECT category, state, size_bytes, article_count FROM package WHERE id = 'b'`,
	).Scan(&category, &state, &size, &articles)
	require.NoError(t, err)
	assert.Equal(t, "other", category)
	assert.Equal(t, "local", state)
	require.NotNil(t, size)
	assert.Equal(t, int64(10), *size)
	assert.Nil(t, articles)
}

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}
