package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// Storage keeps pipeline files flat under one directory. Keys are file names.
type Storage struct {
	basePath string
}

// New opens basePath for writing, creating it when missing.
func New(basePath string) (*Storage, error) {
	if basePath == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open storage", errors.New("directory is required"))
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// NewExisting opens a directory that must already exist, such as a PDF input dir.
func NewExisting(basePath string) (*Storage, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open storage", err)
	}
	if !info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open storage", fmt.Errorf("%s is not a directory", basePath))
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

// List returns the sorted file names matching a glob pattern such as "*.pdf".
func (s *Storage) List(_ context.Context, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.basePath, pattern))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list files", err)
	}

	keys := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		keys = append(keys, filepath.Base(match))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.basePath, key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat file: %w", err)
	}
}

// Save writes through a temp file and renames it, so a crash never leaves a
// partial output that a rerun would skip.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, key)
	tmp, err := os.CreateTemp(s.basePath, "."+filepath.Base(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, key)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
