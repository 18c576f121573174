// Package reconciler applies a parsed catalog feed to the package store.
//
// One reconciliation is one store transaction: remote-only records that left
// the catalog are deleted, new ids are inserted as remote-only records and,
// unless existing records are preserved, the remote-owned fields of known
// records are refreshed. Records carrying local lifecycle state are never
// deleted and their local fields are never touched.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/store"
)

// Outcome counts what one reconciliation changed
type Outcome struct {
	Inserted int
	Updated  int
	Deleted  int
	// Skipped counts remote ids whose entry was malformed
	Skipped int
}

// HadUpdates reports whether the set of known packages changed.
// Refreshing the fields of an existing record does not count.
func (o Outcome) HadUpdates() bool {
	return o.Inserted+o.Deleted > 0
}

// Reconciler applies feeds to a store
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides the clock used to stamp missing creation dates
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reconciler writing to s
func New(s store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store: s,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies feed to the store in a single transaction. When
// preserveExisting is true, records already in the store keep their remote
// fields as they are. On error the store is left as it was.
func (r *Reconciler) Reconcile(ctx context.Context, feed *library.Feed, preserveExisting bool) (Outcome, error) {
	var outcome Outcome
	now := r.now()

	err := r.store.Update(ctx, func(tx store.Tx) error {
		// Reset in case the backend retries the transaction
		outcome = Outcome{}

		existing, err := tx.Scan(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to scan packages: %w", err)
		}

		byID := make(map[string]*library.Package, len(existing))
		for _, pkg := range existing {
			byID[pkg.ID] = pkg
			if !pkg.State.IsLocallyOwned() && !feed.Contains(pkg.ID) {
				if err := tx.Delete(ctx, pkg.ID); err != nil {
					return fmt.Errorf("failed to delete stale package %s: %w", pkg.ID, err)
				}
				outcome.Deleted++
			}
		}

		for _, id := range feed.IDs() {
			meta := feed.Metadata(id)
			if meta == nil {
				outcome.Skipped++
				continue
			}

			pkg, ok := byID[id]
			if !ok {
				if err := tx.Put(ctx, library.NewRemotePackage(meta, now)); err != nil {
					return fmt.Errorf("failed to insert package %s: %w", id, err)
				}
				outcome.Inserted++
				continue
			}

			if preserveExisting || !pkg.ApplyRemote(meta) {
				continue
			}
			if err := tx.Put(ctx, pkg); err != nil {
				return fmt.Errorf("failed to update package %s: %w", id, err)
			}
			outcome.Updated++
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	slog.DebugContext(ctx, "Reconciled catalog feed",
		"inserted", outcome.Inserted,
		"updated", outcome.Updated,
		"deleted", outcome.Deleted,
		"skipped", outcome.Skipped,
		"preserve_existing", preserveExisting)

	return outcome, nil
}
