package testsupport

import (
	"context"
	"testing"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/statestore"
)

// MustOpenStateStore opens the configured snapshot backend and registers
// cleanup.
func MustOpenStateStore(t testing.TB, cfg *config.Config) statestore.Store {
	t.Helper()

	store, err := statestore.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
