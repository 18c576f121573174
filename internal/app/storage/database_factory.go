package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/store/postgres"
)

// defaultConnectTimeout bounds how long startup waits for the database
const defaultConnectTimeout = 30 * time.Second

// DatabaseFactory opens the PostgreSQL store over a shared connection pool
type DatabaseFactory struct {
	pool           *pgxpool.Pool
	tracer         trace.Tracer
	connectTimeout time.Duration
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the store.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// WithConnectTimeout bounds the retries while waiting for the database
func WithConnectTimeout(d time.Duration) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		if d > 0 {
			f.connectTimeout = d
		}
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool and waits until the database answers.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for postgres storage type")
	}

	factory := &DatabaseFactory{connectTimeout: defaultConnectTimeout}
	for _, opt := range opts {
		opt(factory)
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := factory.waitForDatabase(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	factory.pool = pool
	return factory, nil
}

// waitForDatabase pings with exponential backoff until the database answers
func (d *DatabaseFactory) waitForDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(d.connectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Database not reachable, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

// CreateStore opens the PostgreSQL store, applying pending migrations
func (d *DatabaseFactory) CreateStore(ctx context.Context) (store.Store, error) {
	slog.Debug("Opening database store")

	var opts []postgres.Option
	if d.tracer != nil {
		opts = append(opts, postgres.WithTracer(d.tracer))
		slog.Debug("Database store tracing enabled")
	}

	s, err := postgres.Open(ctx, d.pool, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database store: %w", err)
	}
	return s, nil
}

// Cleanup releases resources held by the database factory.
// This closes the database connection pool and any active connections.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a database connection pool with proper configuration.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	// Configure pool settings from config
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
