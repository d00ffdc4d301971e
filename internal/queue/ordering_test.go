package queue_test

import (
	"reflect"
	"testing"
	"time"

	"podforge/internal/queue"
)

func TestPendingIndexOrdersByPriorityThenAge(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var idx queue.PendingIndex
	idx.Insert(&queue.Job{ID: "h1", CreatedAt: base, Input: queue.Input{Priority: queue.PriorityHigh}})
	idx.Insert(&queue.Job{ID: "n1", CreatedAt: base.Add(time.Second), Input: queue.Input{Priority: queue.PriorityNormal}})
	idx.Insert(&queue.Job{ID: "h2", CreatedAt: base.Add(2 * time.Second), Input: queue.Input{Priority: queue.PriorityHigh}})
	idx.Insert(&queue.Job{ID: "l1", CreatedAt: base, Input: queue.Input{Priority: queue.PriorityLow}})

	want := []string{"h1", "h2", "n1", "l1"}
	if got := idx.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestPendingIndexBreaksTiesByID(t *testing.T) {
	base := time.Now()
	var idx queue.PendingIndex
	idx.Insert(&queue.Job{ID: "b", CreatedAt: base})
	idx.Insert(&queue.Job{ID: "a", CreatedAt: base})
	if got := idx.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestPendingIndexSkipsDelayedJobs(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	var idx queue.PendingIndex
	idx.Insert(&queue.Job{ID: "retrying", CreatedAt: now.Add(-time.Hour), NextAttemptAt: &later, Input: queue.Input{Priority: queue.PriorityHigh}})
	idx.Insert(&queue.Job{ID: "fresh", CreatedAt: now})

	if job := idx.PopEligible(now); job == nil || job.ID != "fresh" {
		t.Fatalf("expected fresh, got %+v", job)
	}
	if job := idx.PopEligible(now); job != nil {
		t.Fatalf("expected nothing eligible, got %s", job.ID)
	}
	if wake := idx.NextWake(); !wake.Equal(later) {
		t.Fatalf("NextWake = %v, want %v", wake, later)
	}
	if job := idx.PopEligible(later); job == nil || job.ID != "retrying" {
		t.Fatalf("expected retrying once delay elapsed, got %+v", job)
	}
}

func TestPendingIndexRemove(t *testing.T) {
	var idx queue.PendingIndex
	idx.Insert(&queue.Job{ID: "a"})
	if !idx.Remove("a") {
		t.Fatal("expected removal")
	}
	if idx.Remove("a") {
		t.Fatal("expected second removal to report false")
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d", idx.Len())
	}
}
