package statestore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/statestore"
)

func sampleSnapshot() *statestore.Snapshot {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return statestore.NewSnapshot(map[string]*queue.Job{
		"a": {ID: "a", Type: queue.TypeFullPipeline, Status: queue.StatusPending, CreatedAt: created, UpdatedAt: created,
			Input: queue.Input{Prompt: "a", ProductTypes: []string{"tshirt"}, Priority: queue.PriorityHigh}},
		"b": {ID: "b", Type: queue.TypeFullPipeline, Status: queue.StatusCompleted, CreatedAt: created, UpdatedAt: created,
			Result: &queue.Result{Success: true, Platforms: []queue.PlatformOutcome{{Platform: "printify", Success: true, ProductID: "p1"}}}},
	}, created.Add(time.Minute))
}

func assertRoundTrip(t *testing.T, store statestore.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("initial Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil snapshot before first save, got %+v", got)
	}

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || len(got.Jobs) != 2 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.Jobs["a"].Input.Priority != queue.PriorityHigh {
		t.Fatalf("priority lost: %+v", got.Jobs["a"].Input)
	}
	if got.Jobs["b"].Result == nil || got.Jobs["b"].Result.Platforms[0].ProductID != "p1" {
		t.Fatalf("result lost: %+v", got.Jobs["b"].Result)
	}

	// a second save replaces rather than merges
	next := sampleSnapshot()
	delete(next.Jobs, "b")
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(got.Jobs) != 1 {
		t.Fatalf("expected 1 job after replace, got %d", len(got.Jobs))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := statestore.NewFileStore(filepath.Join(t.TempDir(), "queue_state.json"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	assertRoundTrip(t, store)
}

func TestFileStoreMovesCorruptFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := statestore.NewFileStore(path, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	snap, err := store.Load(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("expected empty load, got %+v err=%v", snap, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "queue_state.json.corrupted.") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected corrupted backup, entries=%v", entries)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected original moved, err=%v", err)
	}
}

func TestFileStoreIgnoresUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_state.json")
	if err := os.WriteFile(path, []byte(`{"version": 7, "jobs": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := statestore.NewFileStore(path, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	snap, err := store.Load(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("expected discarded snapshot, got %+v err=%v", snap, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("unsupported file should stay in place: %v", err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := statestore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "queue_state.db"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	assertRoundTrip(t, store)
}

func TestSQLiteStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_state.db")
	ctx := context.Background()
	store, err := statestore.OpenSQLite(ctx, path, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := statestore.OpenSQLite(ctx, path, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	snap, err := reopened.Load(ctx)
	if err != nil || snap == nil || len(snap.Jobs) != 2 {
		t.Fatalf("unexpected snapshot after reopen %+v err=%v", snap, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.State.Backend = config.StateBackendSQLite
	cfg.State.Path = filepath.Join(t.TempDir(), "queue_state.db")
	store, err := statestore.Open(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*statestore.SQLStore); !ok {
		t.Fatalf("expected SQLStore, got %T", store)
	}

	cfg.State.Backend = "etcd"
	if _, err := statestore.Open(context.Background(), &cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("PODFORGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PODFORGE_TEST_POSTGRES_DSN not set")
	}
	store, err := statestore.OpenPostgres(context.Background(), dsn, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Save(context.Background(), statestore.NewSnapshot(nil, time.Now())); err != nil {
		t.Fatal(err)
	}
	snap, err := store.Load(context.Background())
	if err != nil || snap == nil {
		t.Fatalf("Load after save: %+v err=%v", snap, err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("PODFORGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PODFORGE_TEST_REDIS_ADDR not set")
	}
	key := "podforge:test:" + time.Now().Format("150405.000000")
	store, err := statestore.OpenRedis(context.Background(), statestore.RedisOptions{Addr: addr, Key: key}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	assertRoundTrip(t, store)
}
