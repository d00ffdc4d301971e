package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"podforge/internal/queue"
	"podforge/internal/statestore"
)

// memoryStore keeps the last snapshot in memory. With fail set, every Load
// and Save returns an error instead.
type memoryStore struct {
	mu    sync.Mutex
	fail  bool
	saves int
	last  *statestore.Snapshot
}

var errBackendDown = errors.New("state backend unavailable")

func (s *memoryStore) Save(_ context.Context, snap *statestore.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fail {
		return errBackendDown
	}
	s.last = snap
	return nil
}

func (s *memoryStore) Load(context.Context) (*statestore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errBackendDown
	}
	return s.last, nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memoryStore) Last() *statestore.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func TestFailingStoreNeverStopsTheEngine(t *testing.T) {
	store := &memoryStore{fail: true}
	h := newHarness(t, newTestConfig(t), &fakeRunner{}, withStore(store), withAutoSave(10*time.Millisecond))
	h.start(t)

	first := h.submit(t, "first", queue.PriorityNormal)
	second := h.submit(t, "second", queue.PriorityHigh)
	h.waitStatus(t, first, queue.StatusCompleted)
	h.waitStatus(t, second, queue.StatusCompleted)
	waitFor(t, "autosave attempts", func() bool { return store.Saves() >= 2 })

	if err := h.engine.Save(context.Background()); !errors.Is(err, errBackendDown) {
		t.Fatalf("Save error = %v, want backend error", err)
	}

	stopped := make(chan struct{})
	go func() {
		h.engine.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return with a failing store")
	}
	if h.engine.Running() {
		t.Fatal("engine still running after Stop")
	}
}

func TestAutoSaveWritesSnapshotsOnInterval(t *testing.T) {
	store := &memoryStore{}
	h := newHarness(t, newTestConfig(t), &fakeRunner{}, withStore(store), withAutoSave(20*time.Millisecond))

	id := h.submit(t, "persisted", queue.PriorityNormal)
	if store.Saves() != 0 {
		t.Fatalf("saved %d times before Start", store.Saves())
	}
	h.start(t)
	h.waitStatus(t, id, queue.StatusCompleted)

	baseline := store.Saves()
	waitFor(t, "two more autosave ticks", func() bool { return store.Saves() >= baseline+2 })
	snap := store.Last()
	if snap == nil {
		t.Fatal("no snapshot saved")
	}
	if job := snap.Jobs[id]; job == nil || job.Status != queue.StatusCompleted {
		t.Fatalf("snapshot job = %+v", job)
	}
}
