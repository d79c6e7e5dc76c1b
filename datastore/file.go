// Package datastore provides amcp.DataStore implementations: File keeps each dataset in a .ftd file
// under the data folder, SQLite keeps them in a database table.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// File stores datasets as "<root>/<name>.ftd" files prefixed with a UTF-8 byte order mark. Names
// may contain "/" to use sub folders and are matched case-insensitively.
type File struct {
	root   string
	logger *slog.Logger
}

// FileOption represents the options for the File store.
type FileOption func(*File)

const (
	datasetExt = ".ftd"
	utf8BOM    = "\ufeff"
)

var errInvalidName = errors.New("invalid dataset name")

// NewFile creates a File store rooted at dir. The folder is created on the first Store.
func NewFile(dir string, options ...FileOption) *File {
	f := &File{
		root:   dir,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// WithFileLogger sets the logger for the store.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *File) {
		f.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "datastore"),
		)
	}
}

// Store implements amcp.DataStore. An existing dataset whose name differs only in case is
// overwritten.
func (f *File) Store(_ context.Context, name, data string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if found, ok := f.find(p); ok {
		p = found
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create data folder: %w", err)
	}
	if err := os.WriteFile(p, []byte(utf8BOM+data), 0o644); err != nil {
		return fmt.Errorf("failed to write dataset %q: %w", name, err)
	}
	f.logger.Debug("stored dataset", slog.String("name", name), slog.String("path", p))
	return nil
}

// Retrieve implements amcp.DataStore.
func (f *File) Retrieve(_ context.Context, name string) (string, error) {
	p, err := f.path(name)
	if err != nil {
		return "", err
	}
	found, ok := f.find(p)
	if !ok {
		return "", fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}

	data, err := os.ReadFile(found)
	if err != nil {
		return "", fmt.Errorf("failed to read dataset %q: %w", name, err)
	}
	return strings.TrimPrefix(string(data), utf8BOM), nil
}

// List implements amcp.DataStore. Names are relative to the root, "/" separated and without
// extension.
func (f *File) List(_ context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), datasetExt) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		names = append(names, strings.TrimSuffix(rel, path.Ext(rel)))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Remove implements amcp.DataStore.
func (f *File) Remove(_ context.Context, name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	found, ok := f.find(p)
	if !ok {
		return fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}
	if err := os.Remove(found); err != nil {
		return fmt.Errorf("failed to remove dataset %q: %w", name, err)
	}
	return nil
}

func (f *File) path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return filepath.Join(f.root, local+datasetExt), nil
}

// find resolves p case-insensitively, one path element at a time below the root.
func (f *File) find(p string) (string, bool) {
	if _, err := os.Stat(p); err == nil {
		return p, true
	}

	rel, err := filepath.Rel(f.root, p)
	if err != nil {
		return "", false
	}
	current := f.root
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", false
		}
		idx := slices.IndexFunc(entries, func(e fs.DirEntry) bool {
			return strings.EqualFold(e.Name(), elem)
		})
		if idx < 0 {
			return "", false
		}
		current = filepath.Join(current, entries[idx].Name())
	}
	return current, true
}
