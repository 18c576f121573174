package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zimshelf/zim-library/internal/httpclient"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/otel"
	"github.com/zimshelf/zim-library/internal/sources"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/sync/reconciler"
)

// Result contains the result of a successful sync operation
type Result struct {
	// HadUpdates is true when packages were added to or removed from the store
	HadUpdates bool
	Outcome    reconciler.Outcome

	// Hash is the SHA256 of the retrieved catalog document
	Hash string
	// PackageCount is the number of well formed entries in the catalog
	PackageCount int
	// Bytes is the size of the retrieved catalog document
	Bytes int
}

// Options controls a single sync run
type Options struct {
	// PreserveExisting leaves the remote fields of known packages untouched
	PreserveExisting bool

	// Progress receives work unit updates; nil disables reporting
	Progress *Progress
}

// Parser turns a retrieved catalog document into a feed
type Parser interface {
	Parse(data []byte, base string) (*library.Feed, error)
}

// Manager runs the fetch, parse and reconcile pipeline
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/zimshelf/zim-library/internal/sync Manager
type Manager interface {
	// PerformSync executes one complete sync against the store
	PerformSync(ctx context.Context, opts Options) (*Result, *Error)
}

// ManagerOption configures the default manager
type ManagerOption func(*defaultSyncManager)

// WithTracer sets the tracer used for the pipeline spans
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *defaultSyncManager) {
		m.tracer = tracer
	}
}

// WithClock overrides the clock used to stamp new packages
func WithClock(now func() time.Time) ManagerOption {
	return func(m *defaultSyncManager) {
		if now != nil {
			m.now = now
		}
	}
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	source sources.Source
	parser Parser
	store  store.Store
	tracer trace.Tracer
	now    func() time.Time
}

// NewDefaultSyncManager creates a new Manager reading from source and
// reconciling into s
func NewDefaultSyncManager(
	source sources.Source, parser Parser, s store.Store, opts ...ManagerOption,
) Manager {
	m := &defaultSyncManager{
		source: source,
		parser: parser,
		store:  s,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerformSync fetches the catalog, parses it and reconciles it into the store.
// Every failure is classified by the stage it happened in.
func (m *defaultSyncManager) PerformSync(ctx context.Context, opts Options) (*Result, *Error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformSync",
		trace.WithAttributes(otel.AttrPreserveExisting.Bool(opts.PreserveExisting)))
	defer span.End()

	fetchResult, syncErr := m.fetch(ctx, opts.Progress)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		return nil, syncErr
	}

	feed, syncErr := m.parse(ctx, fetchResult)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		return nil, syncErr
	}
	opts.Progress.advance(progressParsedUnits)

	outcome, syncErr := m.reconcile(ctx, feed, opts.PreserveExisting)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		return nil, syncErr
	}
	opts.Progress.advance(ProgressTotalUnits)

	result := &Result{
		HadUpdates:   outcome.HadUpdates(),
		Outcome:      outcome,
		Hash:         fetchResult.Hash,
		PackageCount: feed.Valid(),
		Bytes:        len(fetchResult.Data),
	}
	span.SetAttributes(
		otel.AttrHadUpdates.Bool(result.HadUpdates),
		otel.AttrPackageCount.Int(result.PackageCount),
	)

	slog.InfoContext(ctx, "Catalog sync completed",
		"package_count", result.PackageCount,
		"inserted", outcome.Inserted,
		"updated", outcome.Updated,
		"deleted", outcome.Deleted,
		"skipped", outcome.Skipped,
		"had_updates", result.HadUpdates)

	return result, nil
}

// fetch retrieves the catalog document, reporting byte progress
func (m *defaultSyncManager) fetch(ctx context.Context, progress *Progress) (*sources.FetchResult, *Error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.fetch",
		trace.WithAttributes(otel.AttrCatalogURL.String(m.source.Location())))
	defer span.End()

	ctx = httpclient.ContextWithProgress(ctx, progress.fetchProgress)

	fetchResult, err := m.source.Fetch(ctx)
	if err != nil {
		otel.RecordError(span, err)
		slog.ErrorContext(ctx, "Catalog retrieval failed",
			"location", m.source.Location(),
			"error", err)
		return nil, NewError(KindRetrieval, fmt.Sprintf("Catalog retrieval failed: %v", err), err)
	}
	progress.advance(ProgressFetchUnits)

	span.SetAttributes(otel.AttrCatalogBytes.Int(len(fetchResult.Data)))
	slog.InfoContext(ctx, "Catalog retrieved",
		"location", fetchResult.Location,
		"bytes", len(fetchResult.Data),
		"hash", fetchResult.Hash)

	return fetchResult, nil
}

// parse turns the fetched document into a feed
func (m *defaultSyncManager) parse(ctx context.Context, fetchResult *sources.FetchResult) (*library.Feed, *Error) {
	_, span := otel.StartSpan(ctx, m.tracer, "sync.parse")
	defer span.End()

	feed, err := m.parser.Parse(fetchResult.Data, fetchResult.Location)
	if err != nil {
		otel.RecordError(span, err)
		slog.ErrorContext(ctx, "Catalog parse failed", "error", err)
		return nil, NewError(KindParse, fmt.Sprintf("Catalog parse failed: %v", err), err)
	}

	span.SetAttributes(otel.AttrPackageCount.Int(feed.Len()))
	slog.DebugContext(ctx, "Catalog parsed",
		"entry_count", feed.Len(),
		"valid_count", feed.Valid())

	return feed, nil
}

// reconcile applies the feed to the store in one transaction
func (m *defaultSyncManager) reconcile(
	ctx context.Context, feed *library.Feed, preserveExisting bool,
) (reconciler.Outcome, *Error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.reconcile")
	defer span.End()

	outcome, err := reconciler.New(m.store, reconciler.WithClock(m.now)).Reconcile(ctx, feed, preserveExisting)
	if err != nil {
		otel.RecordError(span, err)
		slog.ErrorContext(ctx, "Failed to reconcile catalog", "error", err)
		return reconciler.Outcome{}, NewError(KindProcess, fmt.Sprintf("Failed to store catalog: %v", err), err)
	}
	return outcome, nil
}
