package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/linkledger/internal/filex"
)

// DirVolume stores each key as <dir>/<key>.chunk, replaced atomically.
type DirVolume struct {
	dir string
}

func NewDirVolume(dir string) (*DirVolume, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &DirVolume{dir: abs}, nil
}

func (v *DirVolume) Name() string { return "dir:" + v.dir }

func (v *DirVolume) path(key string) string {
	return filepath.Join(v.dir, key+".chunk")
}

func (v *DirVolume) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(v.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	return data, nil
}

func (v *DirVolume) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return filex.WriteFileAtomic(v.path(key), data, 0o600)
}

func (v *DirVolume) Close() error { return nil }
