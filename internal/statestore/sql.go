package statestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"podforge/internal/logging"
	"podforge/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the table layout version. Bump it when schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different layout version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore keeps one row per job plus a metadata row for the snapshot
// version and save time. Save replaces the whole table in one transaction.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, persistErr("open", "sqlite path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", "create state directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", "open sqlite db", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, persistErr("open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}
	return newSQLStore(ctx, db, dialectSQLite, logger)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, persistErr("open", "postgres dsn is empty", nil)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, persistErr("open", "open postgres", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, persistErr("open", "ping postgres", err)
	}
	return newSQLStore(ctx, db, dialectPostgres, logger)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *slog.Logger) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: d, logger: logging.NewComponentLogger(logger, "statestore")}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := s.exec(ctx, stmt); err != nil {
			return persistErr("open", "create schema", err)
		}
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.exec(ctx, s.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
			return persistErr("open", "record schema version", err)
		}
		return nil
	case err != nil:
		return persistErr("open", "read schema version", err)
	case version != schemaVersion:
		return persistErr("open", "", fmt.Errorf("%w: database has version %d, expected %d (delete the state database to reset)",
			ErrSchemaMismatch, version, schemaVersion))
	}
	return nil
}

// Save replaces the stored snapshot.
func (s *SQLStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return persistErr("save", "nil snapshot", nil)
	}
	ids := make([]string, 0, len(snap.Jobs))
	for id := range snap.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return persistErr("save", "begin tx", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM jobs"); err != nil {
			return persistErr("save", "clear jobs", err)
		}
		insert := s.rebind(`INSERT INTO jobs (id, status, priority, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?)`)
		for _, id := range ids {
			job := snap.Jobs[id]
			data, err := json.Marshal(job)
			if err != nil {
				return persistErr("save", "encode job "+id, err)
			}
			if _, err := tx.ExecContext(ctx, insert,
				id,
				string(job.Status),
				int(job.Input.Priority),
				formatTime(job.CreatedAt),
				formatTime(job.UpdatedAt),
				string(data),
			); err != nil {
				return persistErr("save", "insert job "+id, err)
			}
		}
		upsert := s.rebind(`INSERT INTO snapshot_meta (id, version, saved_at) VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET version = excluded.version, saved_at = excluded.saved_at`)
		if _, err := tx.ExecContext(ctx, upsert, CurrentVersion, formatTime(snap.SavedAt)); err != nil {
			return persistErr("save", "write snapshot metadata", err)
		}
		if err := tx.Commit(); err != nil {
			return persistErr("save", "commit", err)
		}
		return nil
	})
}

// Load reads the stored snapshot, or (nil, nil) when none exists or its
// version is unsupported.
func (s *SQLStore) Load(ctx context.Context) (*Snapshot, error) {
	var (
		version int
		savedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT version, saved_at FROM snapshot_meta WHERE id = 1").Scan(&version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("load", "read snapshot metadata", err)
	}
	if version != CurrentVersion {
		logging.WarnWithContext(s.logger, "stored snapshot has unsupported version; ignoring", "state_version_unsupported",
			logging.Int("version", version),
			logging.String(logging.FieldErrorHint, "snapshot was written by a different podforge version"),
			logging.String(logging.FieldImpact, "queue starts empty; rows are replaced on next save"),
		)
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM jobs")
	if err != nil {
		return nil, persistErr("load", "query jobs", err)
	}
	defer rows.Close()

	snap := NewSnapshot(nil, parseTime(savedAt))
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, persistErr("load", "scan job", err)
		}
		var job queue.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			logging.WarnWithContext(s.logger, "skipping undecodable job row", "state_row_corrupt",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job is not restored"),
			)
			continue
		}
		if job.ID == "" {
			job.ID = id
		}
		snap.Jobs[id] = &job
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("load", "iterate jobs", err)
	}
	return snap, nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
