package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"podforge/internal/fileutil"
	"podforge/internal/services"
)

// Local writes assets beneath a directory.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates dir when missing.
func NewLocal(dir, baseURL string) (*Local, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "assets", "paths.assets_dir is required for the local backend", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

// Put writes data atomically and returns its URL.
func (l *Local) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", services.Wrap(services.ErrPersistence, "", "assets", "create directory", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrPersistence, "", "assets", "write "+key, err)
	}
	return l.baseURL + "/" + key, nil
}

// Ping verifies the directory is writable.
func (l *Local) Ping(context.Context) error {
	probe, err := os.CreateTemp(l.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("assets dir not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
