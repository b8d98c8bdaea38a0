package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes payloads under a directory, for tests and for setups where a
// synced folder stands in for the remote store.
type Local struct {
	root string
}

// NewLocal returns a backend rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local uploader requires a directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve local dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local dir: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the directory objects are written under.
func (u *Local) Root() string {
	return u.root
}

func (u *Local) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	dest, err := CleanDestination(destination)
	if err != nil {
		return "", err
	}
	target := filepath.Join(u.root, filepath.FromSlash(dest))
	rel, err := filepath.Rel(u.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", Permanent(fmt.Errorf("%w: %q resolves outside %s", ErrInvalidDestination, destination, u.root))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}
	if err := writeFileAtomic(target, payload); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(target), nil
}

// writeFileAtomic writes data next to path, fsyncs it and renames it into
// place so readers never observe a partial object.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}
