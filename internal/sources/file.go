package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zimshelf/zim-library/internal/httpclient"
)

// fileSource reads the catalog from the local filesystem
type fileSource struct {
	path string
}

// NewFileSource creates a source for the catalog at path
func NewFileSource(path string) (Source, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	return &fileSource{path: filepath.Clean(path)}, nil
}

// Fetch reads the catalog file
func (s *fileSource) Fetch(ctx context.Context) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	//nolint:gosec // File path comes from user configuration, this is expected behavior
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", s.path)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", s.path, err)
	}
	if len(data) > httpclient.MaxResponseSize {
		return nil, fmt.Errorf("catalog file %s exceeds maximum allowed size", s.path)
	}

	if progress := httpclient.ProgressFromContext(ctx); progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return NewFetchResult(data, s.path), nil
}

// Location returns the catalog file path
func (s *fileSource) Location() string {
	return s.path
}
