package statestore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"podforge/internal/logging"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps the encoded snapshot under one key and its save time
// under "<key>:saved_at".
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, persistErr("open", "redis address is empty", nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, persistErr("open", "ping redis", err)
	}
	return NewRedisStore(client, opts.Key, logger), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = "podforge:snapshot"
	}
	return &RedisStore{client: client, key: key, logger: logging.NewComponentLogger(logger, "statestore")}
}

// Save writes the snapshot and its timestamp in one transaction.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return persistErr("save", "encode snapshot", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Set(ctx, s.key+":saved_at", snap.SavedAt.UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return persistErr("save", "write snapshot", err)
	}
	return nil
}

// Load reads the snapshot. Corrupt or unsupported values are logged and
// ignored.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("load", "read snapshot", err)
	}
	snap, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrUnsupportedVersion) {
			logging.WarnWithContext(s.logger, "stored snapshot unusable; ignoring", "state_unusable",
				logging.String("key", s.key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "queue starts empty; key is overwritten on next save"),
			)
			return nil, nil
		}
		return nil, persistErr("load", "decode snapshot", err)
	}
	return snap, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
