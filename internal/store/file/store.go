// Package file implements the package store as a single JSON document on the
// local filesystem.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/zimshelf/zim-library/internal/fsutil"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/store/migration"
)

const (
	// DefaultFileName is the name of the library document inside the data directory
	DefaultFileName = "library.json"

	// legacySchemaVersion is assumed for documents written before versions were stamped
	legacySchemaVersion = 1
)

// ErrLocked is returned when another process holds the store open
var ErrLocked = errors.New("library store is locked by another process")

// document is the on-disk shape of the store
type document struct {
	SchemaVersion int                `json:"schemaVersion"`
	Packages      []*library.Package `json:"packages"`
}

// rawDocument is used to read documents of any schema version
type rawDocument struct {
	SchemaVersion int                `json:"schemaVersion"`
	Packages      []migration.Record `json:"packages"`
}

// Store is a file backed store.Store
type Store struct {
	path string
	lock *flock.Flock

	// writeMu serializes transactions for their whole duration
	writeMu sync.Mutex

	// mu guards the committed snapshot
	mu       sync.RWMutex
	packages map[string]*library.Package
	version  int
	closed   bool

	persist func(path string, data []byte) error
}

var _ store.Store = (*Store)(nil)

// Open opens the store document at path, creating it on first commit.
// Records persisted by an older schema version are migrated before Open returns.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	s := &Store{
		path:     path,
		lock:     lock,
		packages: make(map[string]*library.Package),
		version:  store.CurrentSchemaVersion,
		persist:  fsutil.WriteFileAtomic,
	}

	if err := s.load(ctx); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

// Path returns the location of the store document
func (s *Store) Path() string {
	return s.path
}

// load reads the document and migrates it to the current schema if needed
func (s *Store) load(ctx context.Context) error {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Library store not found, starting empty", "path", s.path)
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var raw rawDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode store file: %w", err)
	}
	if raw.SchemaVersion == 0 {
		raw.SchemaVersion = legacySchemaVersion
	}
	if raw.SchemaVersion > store.CurrentSchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d",
			raw.SchemaVersion, store.CurrentSchemaVersion)
	}

	s.version = raw.SchemaVersion
	return s.migrateRaw(ctx, raw.Packages, store.CurrentSchemaVersion)
}

// migrateRaw upgrades raw records to target, persists them when anything
// changed, and installs them as the committed snapshot
func (s *Store) migrateRaw(_ context.Context, records []migration.Record, target int) error {
	from := s.version
	migrated, err := migration.Apply(records, from, target)
	if err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	packages := make(map[string]*library.Package, len(migrated))
	for i, rec := range migrated {
		if rec == nil {
			continue
		}
		pkg, err := decodeRecord(rec)
		if err != nil {
			return fmt.Errorf("failed to decode package %d: %w", i, err)
		}
		if err := store.Validate(pkg); err != nil {
			return fmt.Errorf("failed to load package %d: %w", i, err)
		}
		packages[pkg.ID] = pkg
	}

	if migration.Pending(from, target) {
		if err := s.write(packages, target); err != nil {
			return err
		}
		slog.Info("Migrated library store",
			"path", s.path,
			"from_version", from,
			"to_version", target,
			"package_count", len(packages))
	}

	s.packages = packages
	s.version = target
	return nil
}

// Get returns the package with the given id
func (s *Store) Get(ctx context.Context, id string) (*library.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return get(s.packages, id)
}

// Scan returns the packages matching pred, ordered by id
func (s *Store) Scan(ctx context.Context, pred store.Predicate) ([]*library.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return scan(s.packages, pred), nil
}

// Update runs fn against a private copy of the committed snapshot. The copy
// is written to disk and swapped in only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrClosed
	}
	staged := make(map[string]*library.Package, len(s.packages))
	for id, pkg := range s.packages {
		staged[id] = pkg
	}
	version := s.version
	s.mu.RUnlock()

	tx := &fileTx{packages: staged}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.write(staged, version); err != nil {
		return err
	}

	s.mu.Lock()
	s.packages = staged
	s.mu.Unlock()
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

// SchemaVersion reports the persisted schema version
func (s *Store) SchemaVersion(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	return s.version, nil
}

// Migrate brings the store to target. Records are migrated to the current
// schema when the store is opened, so this only validates target.
func (s *Store) Migrate(_ context.Context, target int) error {
	if target > store.CurrentSchemaVersion {
		return fmt.Errorf("unknown schema version %d (latest is %d)", target, store.CurrentSchemaVersion)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close releases the process lock
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release store lock: %w", err)
	}
	return nil
}

// write serializes packages and replaces the document on disk
func (s *Store) write(packages map[string]*library.Package, version int) error {
	doc := document{
		SchemaVersion: version,
		Packages:      scan(packages, nil),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store document: %w", err)
	}
	if err := s.persist(s.path, data); err != nil {
		return fmt.Errorf("failed to persist store document: %w", err)
	}
	return nil
}

// fileTx stages mutations on a copy of the committed map
type fileTx struct {
	packages map[string]*library.Package
	dirty    bool
}

func (t *fileTx) Get(ctx context.Context, id string) (*library.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return get(t.packages, id)
}

func (t *fileTx) Scan(ctx context.Context, pred store.Predicate) ([]*library.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scan(t.packages, pred), nil
}

func (t *fileTx) Put(ctx context.Context, pkg *library.Package) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Validate(pkg); err != nil {
		return err
	}
	t.packages[pkg.ID] = pkg.Clone()
	t.dirty = true
	return nil
}

func (t *fileTx) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.packages[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(t.packages, id)
	t.dirty = true
	return nil
}

func get(packages map[string]*library.Package, id string) (*library.Package, error) {
	pkg, ok := packages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return pkg.Clone(), nil
}

func scan(packages map[string]*library.Package, pred store.Predicate) []*library.Package {
	result := make([]*library.Package, 0, len(packages))
	for _, pkg := range packages {
		if pred == nil || pred(pkg) {
			result = append(result, pkg.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func decodeRecord(rec migration.Record) (*library.Package, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var pkg library.Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}
