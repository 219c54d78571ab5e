package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"handout/internal/fileutil"
)

// Local stores artifacts directly under the output directory. The storage
// prefix only applies to object stores.
type Local struct {
	root string
}

// NewLocal returns a filesystem store rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(objectKey("", name)))
}

// Put implements Store.
func (l *Local) Put(ctx context.Context, src, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := l.path(name)
	if src == dst {
		return dst, nil
	}
	if err := fileutil.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return dst, nil
}

// Exists implements Store.
func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
