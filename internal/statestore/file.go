package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"podforge/internal/fileutil"
	"podforge/internal/logging"
)

const fileLockRetry = 50 * time.Millisecond

// FileStore keeps the snapshot in one JSON document. Writes go through a
// temp file and rename; an advisory lock on "<path>.lock" serializes writers
// across processes.
type FileStore struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, persistErr("open", "state path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", "create state directory", err)
	}
	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logging.NewComponentLogger(logger, "statestore"),
	}, nil
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes snap atomically.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return persistErr("save", "encode snapshot", err)
	}
	locked, err := s.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil || !locked {
		return persistErr("save", "acquire state lock", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return persistErr("save", "write snapshot", err)
	}
	return nil
}

// Load reads the snapshot. A missing file yields (nil, nil). A corrupt file
// is moved aside and an unsupported version is left in place; both yield
// (nil, nil) after logging a warning.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	locked, err := s.lock.TryRLockContext(ctx, fileLockRetry)
	if err != nil || !locked {
		return nil, persistErr("load", "acquire state lock", err)
	}
	data, err := os.ReadFile(s.path)
	_ = s.lock.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("load", "read snapshot", err)
	}

	snap, err := Decode(data)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, ErrCorrupt):
		backup, moveErr := fileutil.MoveAside(s.path, time.Now())
		logging.WarnWithContext(s.logger, "state file corrupt; starting empty", "state_corrupt",
			logging.String("path", s.path),
			logging.String("backup", backup),
			logging.Error(errors.Join(err, moveErr)),
			logging.String(logging.FieldErrorHint, "inspect the backup file; jobs in it were not restored"),
			logging.String(logging.FieldImpact, "queue starts empty"),
		)
		return nil, nil
	case errors.Is(err, ErrUnsupportedVersion):
		logging.WarnWithContext(s.logger, "state file has unsupported version; ignoring", "state_version_unsupported",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "snapshot was written by a different podforge version"),
			logging.String(logging.FieldImpact, "queue starts empty; file is overwritten on next save"),
		)
		return nil, nil
	default:
		return nil, persistErr("load", fmt.Sprintf("decode %s", s.path), err)
	}
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.lock.Close()
}
