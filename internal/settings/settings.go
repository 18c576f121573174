// Package settings persists the process-wide configuration state shared by
// the sync coordinator and the outer surfaces: the last sync time, the
// language filter and whether the language hint was shown.
package settings

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zimshelf/zim-library/internal/fsutil"
)

//go:generate mockgen -destination=mocks/mock_settings.go -package=mocks -source=settings.go Store

// FileName is the name of the settings document inside the data directory
const FileName = "settings.json"

// Settings is the persisted configuration state
type Settings struct {
	// LastSyncTimestamp is set after every successful sync; nil until the first one
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp,omitempty"`

	// FilterLanguageCodes restricts the package listing to these languages
	FilterLanguageCodes []string `json:"filterLanguageCodes,omitempty"`

	HasShownLanguageHintOnce bool `json:"hasShownLanguageHintOnce"`
}

// Clone returns a deep copy of s
func (s *Settings) Clone() *Settings {
	if s == nil {
		return &Settings{}
	}
	c := *s
	if s.LastSyncTimestamp != nil {
		ts := *s.LastSyncTimestamp
		c.LastSyncTimestamp = &ts
	}
	c.FilterLanguageCodes = slices.Clone(s.FilterLanguageCodes)
	return &c
}

// NeedsLanguageHint reports whether the user should be told how to change
// the language filter: a sync has completed, exactly one language is
// selected and the hint was never shown.
func (s *Settings) NeedsLanguageHint() bool {
	if s == nil {
		return false
	}
	return s.LastSyncTimestamp != nil &&
		len(s.FilterLanguageCodes) == 1 &&
		!s.HasShownLanguageHintOnce
}

// Store loads and updates the settings
type Store interface {
	// Load returns a copy of the current settings
	Load(ctx context.Context) (*Settings, error)

	// Update applies fn to the current settings and persists the result.
	// Nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(s *Settings) error) error
}

// fileStore keeps the settings in a JSON document
type fileStore struct {
	path string

	mu      sync.Mutex
	current *Settings
}

// NewFileStore creates a settings store backed by the JSON document at path.
// A missing document yields default settings.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path is required")
	}

	current, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &fileStore{path: path, current: current}, nil
}

func (f *fileStore) Load(ctx context.Context) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone(), nil
}

func (f *fileStore) Update(ctx context.Context, fn func(s *Settings) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	staged := f.current.Clone()
	if err := fn(staged); err != nil {
		return err
	}
	if err := writeFile(f.path, staged); err != nil {
		return err
	}
	f.current = staged
	return nil
}

func readFile(path string) (*Settings, error) {
	s := &Settings{}
	if _, err := fsutil.ReadJSON(path, s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, nil
}

func writeFile(path string, s *Settings) error {
	if err := fsutil.WriteJSON(path, s); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
