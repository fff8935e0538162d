package publish

import (
	"context"
	"os"
	"path/filepath"
)

// DirStore writes exported documents into a local directory tree.
type DirStore struct {
	// Root is the output directory. Created on first Put.
	Root string
}

// Put writes one document, creating parent directories as needed.
func (d *DirStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	path := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
