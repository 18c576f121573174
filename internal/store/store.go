// Package store defines the persistent package record store.
//
// Every backend offers the same contract: point reads, predicate scans and
// scoped read-write transactions that either commit as a whole or leave the
// store untouched. Backends run schema migrations when they are opened so the
// records they hand out are always in the current shape.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zimshelf/zim-library/internal/library"
)

// CurrentSchemaVersion is the record shape every backend migrates to
const CurrentSchemaVersion = 3

var (
	// ErrNotFound is returned when a package id is not present in the store
	ErrNotFound = errors.New("package not found")

	// ErrClosed is returned when the store is used after Close
	ErrClosed = errors.New("store is closed")

	// ErrInvalidPackage is returned when a record cannot be persisted as given
	ErrInvalidPackage = errors.New("invalid package")
)

// Predicate selects packages during a scan. A nil predicate matches everything.
type Predicate func(pkg *library.Package) bool

// Reader provides read access to package records
type Reader interface {
	// Get returns the package with the given id, or ErrNotFound
	Get(ctx context.Context, id string) (*library.Package, error)

	// Scan returns every package matching the predicate, ordered by id
	Scan(ctx context.Context, pred Predicate) ([]*library.Package, error)
}

// Tx is a read-write view of the store inside one transaction.
// Reads observe the writes made earlier in the same transaction.
type Tx interface {
	Reader

	// Put inserts the package or replaces the record with the same id
	Put(ctx context.Context, pkg *library.Package) error

	// Delete removes the package with the given id, or returns ErrNotFound
	Delete(ctx context.Context, id string) error
}

// Store is the persistent package record store
type Store interface {
	Reader

	// Update runs fn inside one atomic transaction. If fn returns an error,
	// or the commit fails, no mutation made by fn is visible afterwards.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Put stores a single package in its own transaction
	Put(ctx context.Context, pkg *library.Package) error

	// Delete removes a single package in its own transaction
	Delete(ctx context.Context, id string) error

	// SchemaVersion reports the schema version currently persisted
	SchemaVersion(ctx context.Context) (int, error)

	// Migrate brings the persisted records up to target. It is a no-op when
	// the store is already at or beyond target.
	Migrate(ctx context.Context, target int) error

	// Close releases the resources held by the store
	Close() error
}

// ByState matches packages in any of the given states
func ByState(states ...library.State) Predicate {
	return func(pkg *library.Package) bool {
		for _, s := range states {
			if pkg.State == s {
				return true
			}
		}
		return false
	}
}

// ByLanguage matches packages in any of the given languages
func ByLanguage(codes ...string) Predicate {
	return func(pkg *library.Package) bool {
		for _, c := range codes {
			if pkg.LanguageCode == c {
				return true
			}
		}
		return false
	}
}

// All matches packages accepted by every predicate. Nil predicates are ignored.
func All(preds ...Predicate) Predicate {
	return func(pkg *library.Package) bool {
		for _, p := range preds {
			if p != nil && !p(pkg) {
				return false
			}
		}
		return true
	}
}

// Validate checks the invariants every persisted record must satisfy
func Validate(pkg *library.Package) error {
	if pkg == nil {
		return fmt.Errorf("%w: package is nil", ErrInvalidPackage)
	}
	if pkg.ID == "" {
		return fmt.Errorf("%w: package id is required", ErrInvalidPackage)
	}
	if !pkg.State.Valid() {
		return fmt.Errorf("%w: unknown state %q for package %s", ErrInvalidPackage, pkg.State, pkg.ID)
	}
	return nil
}
