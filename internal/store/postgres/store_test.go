package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimshelf/zim-library/database"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/store"
)

func remotePackage(id string) *library.Package {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return library.NewRemotePackage(&library.Metadata{
		ID:           id,
		ShortName:    id + "_name",
		Title:        "Title " + id,
		LanguageCode: "en",
		Category:     library.CategoryWikivoyage,
		CreationDate: &created,
		SizeBytes:    library.Int64(0),
		ArticleCount: library.Int64(99),
		HasIndex:     true,
	}, time.Now())
}

func TestStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)

	s, err := Open(ctx, pool)
	require.NoError(t, err)

	t.Run("schema is current", func(t *testing.T) {
		version, err := s.SchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.CurrentSchemaVersion, version)
		require.NoError(t, s.Migrate(ctx, store.CurrentSchemaVersion))
	})

	t.Run("put and get round trips optional fields", func(t *testing.T) {
		pkg := remotePackage("rt")
		pkg.FaviconData = []byte{0x89, 'P', 'N', 'G'}
		require.NoError(t, s.Put(ctx, pkg))

		got, err := s.Get(ctx, "rt")
		require.NoError(t, err)
		assert.Equal(t, "Title rt", got.Title)
		assert.Equal(t, library.CategoryWikivoyage, got.Category)
		assert.Equal(t, library.StateRemoteOnly, got.State)
		require.NotNil(t, got.SizeBytes)
		assert.Equal(t, int64(0), *got.SizeBytes)
		require.NotNil(t, got.ArticleCount)
		assert.Equal(t, int64(99), *got.ArticleCount)
		assert.Nil(t, got.MediaCount)
		assert.True(t, got.HasIndex)
		assert.True(t, got.IncludeInSearch)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.FaviconData)
		require.NotNil(t, got.CreationDate)
		assert.True(t, got.CreationDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), store.ErrNotFound)
	})

	t.Run("failed transaction rolls back", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, remotePackage("keep")))

		boom := errors.New("boom")
		err := s.Update(ctx, func(tx store.Tx) error {
			if err := tx.Delete(ctx, "keep"); err != nil {
				return err
			}
			if err := tx.Put(ctx, remotePackage("ghost")); err != nil {
				return err
			}
			_, err := tx.Get(ctx, "ghost")
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, "keep")
		assert.NoError(t, err)
		_, err = s.Get(ctx, "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("scan filters by predicate in id order", func(t *testing.T) {
		local := remotePackage("zz-local")
		local.State = library.StateLocal
		require.NoError(t, s.Put(ctx, local))

		got, err := s.Scan(ctx, store.ByState(library.StateLocal))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "zz-local", got[0].ID)

		all, err := s.Scan(ctx, nil)
		require.NoError(t, err)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID)
		}
	})

	t.Run("invalid package is rejected", func(t *testing.T) {
		pkg := remotePackage("bad")
		pkg.State = "cloud"
		assert.ErrorIs(t, s.Put(ctx, pkg), store.ErrInvalidPackage)
	})
}
