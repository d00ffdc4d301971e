package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// CurrentVersion is the snapshot format written by this build.
const CurrentVersion = 2

// Snapshot is the persisted engine state.
type Snapshot struct {
	Version int                   `json:"version"`
	Jobs    map[string]*queue.Job `json:"jobs"`
	SavedAt time.Time             `json:"savedAt"`
}

// NewSnapshot wraps jobs in a current-version snapshot stamped with now.
func NewSnapshot(jobs map[string]*queue.Job, now time.Time) *Snapshot {
	if jobs == nil {
		jobs = make(map[string]*queue.Job)
	}
	return &Snapshot{Version: CurrentVersion, Jobs: jobs, SavedAt: now.UTC()}
}

// Store saves and loads snapshots. Load returns (nil, nil) when nothing has
// been stored or the stored snapshot was unusable and has been discarded.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Open builds the backend selected by cfg.State.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	switch backend {
	case "", config.StateBackendFile:
		return NewFileStore(cfg.State.Path, logger)
	case config.StateBackendSQLite:
		return OpenSQLite(ctx, cfg.State.Path, logger)
	case config.StateBackendPostgres:
		return OpenPostgres(ctx, cfg.State.DSN, logger)
	case config.StateBackendRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.State.RedisAddr,
			Password: cfg.State.RedisPassword,
			DB:       cfg.State.RedisDB,
			Key:      cfg.State.RedisKey,
		}, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "state", "open", fmt.Sprintf("unknown state backend %q", cfg.State.Backend), nil)
	}
}

func persistErr(operation, message string, err error) error {
	return services.Wrap(services.ErrPersistence, "state", operation, message, err)
}
