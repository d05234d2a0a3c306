package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirPublisher copies files into a local directory
type DirPublisher struct {
	dir string
}

// NewDirPublisher creates dir when needed
func NewDirPublisher(dir string) (*DirPublisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return &DirPublisher{dir: dir}, nil
}

// Publish writes content to a temporary file and renames it into place
func (p *DirPublisher) Publish(_ context.Context, name string, content []byte) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(p.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Location returns the destination path of name
func (p *DirPublisher) Location(name string) string {
	return filepath.Join(p.dir, name)
}
