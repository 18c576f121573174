// Package postgres implements the package store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/zimshelf/zim-library/database"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/otel"
	"github.com/zimshelf/zim-library/internal/store"
)

const packageColumns = `id, short_name, title, description, language_code, category,
	creator, publisher, creation_date, download_url, favicon_url, favicon_data,
	size_bytes, article_count, media_count,
	has_details, has_index, has_pictures, has_videos,
	state, download_bytes_written, download_resume_token, download_error_message,
	include_in_search, file_bookmark`

const upsertPackage = `INSERT INTO package (` + packageColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	ON CONFLICT (id) DO UPDATE SET
		short_name = EXCLUDED.short_name,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		language_code = EXCLUDED.language_code,
		category = EXCLUDED.category,
		creator = EXCLUDED.creator,
		publisher = EXCLUDED.publisher,
		creation_date = EXCLUDED.creation_date,
		download_url = EXCLUDED.download_url,
		favicon_url = EXCLUDED.favicon_url,
		favicon_data = EXCLUDED.favicon_data,
		size_bytes = EXCLUDED.size_bytes,
		article_count = EXCLUDED.article_count,
		media_count = EXCLUDED.media_count,
		has_details = EXCLUDED.has_details,
		has_index = EXCLUDED.has_index,
		has_pictures = EXCLUDED.has_pictures,
		has_videos = EXCLUDED.has_videos,
		state = EXCLUDED.state,
		download_bytes_written = EXCLUDED.download_bytes_written,
		download_resume_token = EXCLUDED.download_resume_token,
		download_error_message = EXCLUDED.download_error_message,
		include_in_search = EXCLUDED.include_in_search,
		file_bookmark = EXCLUDED.file_bookmark`

// querier is the subset of pgx shared by the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL backed store.Store
type Store struct {
	pool       *pgxpool.Pool
	connString string
	tracer     trace.Tracer
}

var _ store.Store = (*Store)(nil)

// Option configures the Postgres store
type Option func(*Store)

// WithTracer sets the OpenTelemetry tracer for store operations
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// Open wraps pool as a package store and migrates the schema to the current
// version. The caller owns the pool and closes it after the store.
func Open(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}

	s := &Store{
		pool:       pool,
		connString: pool.Config().ConnString(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Migrate(ctx, store.CurrentSchemaVersion); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the package with the given id
func (s *Store) Get(ctx context.Context, id string) (*library.Package, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "postgres.Get",
		trace.WithAttributes(otel.AttrPackageID.String(id)))
	defer span.End()

	pkg, err := getPackage(ctx, s.pool, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		otel.RecordError(span, err)
	}
	return pkg, err
}

// Scan returns the packages matching pred, ordered by id
func (s *Store) Scan(ctx context.Context, pred store.Predicate) ([]*library.Package, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "postgres.Scan")
	defer span.End()

	result, err := scanPackages(ctx, s.pool, pred)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(otel.AttrPackageCount.Int(len(result)))
	return result, nil
}

// Update runs fn inside a serializable read-write transaction
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	ctx, span := otel.StartSpan(ctx, s.tracer, "postgres.Update")
	defer span.End()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.Warn("Failed to roll back transaction", "error", rollbackErr)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		otel.RecordError(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Put stores pkg in its own transaction
func (s *Store) Put(ctx context.Context, pkg *library.Package) error {
	return s.Update(ctx, func(tx store.Tx) error {
		return tx.Put(ctx, pkg)
	})
}

// Delete removes the package with the given id in its own transaction
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx store.Tx) error {
		return tx.Delete(ctx, id)
	})
}

// SchemaVersion reports the applied migration version
func (s *Store) SchemaVersion(_ context.Context) (int, error) {
	m, err := database.NewFromConnectionString(s.connString)
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = m.Close() }()

	version, err := database.CurrentVersion(m)
	if err != nil {
		return 0, err
	}
	return int(version), nil
}

// Migrate applies schema migrations up to target when the database is behind
func (s *Store) Migrate(ctx context.Context, target int) error {
	_, span := otel.StartSpan(ctx, s.tracer, "postgres.Migrate")
	defer span.End()

	if target < 1 || target > store.CurrentSchemaVersion {
		return fmt.Errorf("unknown schema version %d (latest is %d)", target, store.CurrentSchemaVersion)
	}

	m, err := database.NewFromConnectionString(s.connString)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	defer func() { _, _ = m.Close() }()

	before, err := database.CurrentVersion(m)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	if before >= uint(target) {
		return nil
	}

	start := time.Now()
	if err := database.MigrateTo(m, uint(target)); err != nil {
		otel.RecordError(span, err)
		return err
	}
	slog.Info("Migrated database schema",
		"from_version", before,
		"to_version", target,
		"duration", time.Since(start))
	return nil
}

// Close is a no-op; the pool belongs to the caller
func (*Store) Close() error {
	return nil
}

// pgTx adapts a pgx transaction to store.Tx
type pgTx struct {
	tx querier
}

func (t *pgTx) Get(ctx context.Context, id string) (*library.Package, error) {
	return getPackage(ctx, t.tx, id)
}

func (t *pgTx) Scan(ctx context.Context, pred store.Predicate) ([]*library.Package, error) {
	return scanPackages(ctx, t.tx, pred)
}

func (t *pgTx) Put(ctx context.Context, pkg *library.Package) error {
	if err := store.Validate(pkg); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, upsertPackage, packageArgs(pkg)...); err != nil {
		return fmt.Errorf("failed to upsert package %s: %w", pkg.ID, err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM package WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete package %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

func getPackage(ctx context.Context, q querier, id string) (*library.Package, error) {
	row := q.QueryRow(ctx, `SELECT `+packageColumns+` FROM package WHERE id = $1`, id)
	pkg, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get package %s: %w", id, err)
	}
	return pkg, nil
}

func scanPackages(ctx context.Context, q querier, pred store.Predicate) ([]*library.Package, error) {
	rows, err := q.Query(ctx, `SELECT `+packageColumns+` FROM package ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	result := make([]*library.Package, 0)
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		if pred == nil || pred(pkg) {
			result = append(result, pkg)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packages: %w", err)
	}
	return result, nil
}

func scanPackage(row pgx.Row) (*library.Package, error) {
	var (
		pkg      library.Package
		category string
		state    string
	)
	err := row.Scan(
		&pkg.ID, &pkg.ShortName, &pkg.Title, &pkg.Description, &pkg.LanguageCode, &category,
		&pkg.Creator, &pkg.Publisher, &pkg.CreationDate, &pkg.DownloadURL, &pkg.FaviconURL, &pkg.FaviconData,
		&pkg.SizeBytes, &pkg.ArticleCount, &pkg.MediaCount,
		&pkg.HasDetails, &pkg.HasIndex, &pkg.HasPictures, &pkg.HasVideos,
		&state, &pkg.DownloadBytesWritten, &pkg.DownloadResumeToken, &pkg.DownloadErrorMessage,
		&pkg.IncludeInSearch, &pkg.FileBookmark,
	)
	if err != nil {
		return nil, err
	}
	pkg.Category = library.ParseCategory(category)
	pkg.State = library.State(state)
	if pkg.CreationDate != nil {
		utc := pkg.CreationDate.UTC()
		pkg.CreationDate = &utc
	}
	return &pkg, nil
}

func packageArgs(pkg *library.Package) []any {
	category := pkg.Category
	if category == "" {
		category = library.CategoryOther
	}
	return []any{
		pkg.ID, pkg.ShortName, pkg.Title, pkg.Description, pkg.LanguageCode, string(category),
		pkg.Creator, pkg.Publisher, pkg.CreationDate, pkg.DownloadURL, pkg.FaviconURL, pkg.FaviconData,
		pkg.SizeBytes, pkg.ArticleCount, pkg.MediaCount,
		pkg.HasDetails, pkg.HasIndex, pkg.HasPictures, pkg.HasVideos,
		string(pkg.State), pkg.DownloadBytesWritten, pkg.DownloadResumeToken, pkg.DownloadErrorMessage,
		pkg.IncludeInSearch, pkg.FileBookmark,
	}
}
