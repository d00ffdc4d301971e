package stage

import (
	"testing"
	"time"

	"podforge/internal/queue"
)

func TestRecordAllocatesResult(t *testing.T) {
	job := &queue.Job{}
	started := time.Now().Add(-time.Second)
	Record(job, "generation", queue.StageCompleted, "2/2 images", started)
	if job.Result == nil || len(job.Result.Stages) != 1 {
		t.Fatalf("expected one stage output, got %+v", job.Result)
	}
	out := job.Result.Stages[0]
	if out.Name != "generation" || out.Status != queue.StageCompleted || out.Detail != "2/2 images" {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.CompletedAt.Before(out.StartedAt) {
		t.Fatalf("completedAt before startedAt: %+v", out)
	}
}

func TestEnsureResultKeepsExisting(t *testing.T) {
	existing := &queue.Result{Prompt: "x"}
	job := &queue.Job{Result: existing}
	if EnsureResult(job) != existing {
		t.Fatal("expected existing result to be reused")
	}
}

func TestSummarize(t *testing.T) {
	ready, detail := Summarize([]Health{Healthy("prompt"), Unhealthy("publishing", "no platforms"), Unhealthy("generation", "")})
	if ready {
		t.Fatal("expected not ready")
	}
	if detail != "publishing: no platforms; generation: not ready" {
		t.Fatalf("detail = %q", detail)
	}
	if ready, _ := Summarize([]Health{Healthy("a")}); !ready {
		t.Fatal("expected ready")
	}
}
