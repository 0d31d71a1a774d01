package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive keeps a copy of every generated report outside the cache.
type Archive interface {
	Put(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

type localArchive struct {
	rootDir string
}

// NewLocalArchive stores objects under rootDir. An empty rootDir disables
// archiving and NewLocalArchive returns nil.
func NewLocalArchive(rootDir string) Archive {
	if strings.TrimSpace(rootDir) == "" {
		return nil
	}
	return &localArchive{rootDir: rootDir}
}

var ErrInvalidObjectPath = errors.New("object path escapes archive root")

// Put writes data through a temp file and a rename so readers never see a
// partial report. It returns the file:// URL of the stored object.
func (a *localArchive) Put(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := filepath.Clean(filepath.FromSlash(objectPath))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, objectPath)
	}
	dst := filepath.Join(a.rootDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("archive mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("archive temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("archive write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("archive close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("archive rename: %w", err)
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + abs, nil
}
