package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir reads logs from a local directory such as /var/lib/smartmontools.
type Dir struct {
	path string
}

// NewDir checks that path is a directory.
func NewDir(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDirectory, path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return &Dir{path: path}, nil
}

// Location returns the directory path.
func (d *Dir) Location() string { return d.path }

// List implements Source.
func (d *Dir) List(ctx context.Context) (Listing, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return Listing{}, fmt.Errorf("read %s: %w", d.path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() || e.Type()&os.ModeSymlink != 0 {
			names = append(names, e.Name())
		}
	}
	return classify(names), nil
}

// Open implements Source.
func (d *Dir) Open(ctx context.Context, f LogFile) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(d.path, f.Name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	return file, nil
}
