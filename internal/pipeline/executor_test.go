package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"podforge/internal/pipeline"
	"podforge/internal/queue"
	"podforge/internal/services"
)

func newJob(in queue.Input) *queue.Job {
	return &queue.Job{ID: "job-1", Type: queue.TypeFullPipeline, Input: in, Status: queue.StatusRunning}
}

func TestExecuteFullPipelineSuccess(t *testing.T) {
	printify := &fakeTarget{name: "printify"}
	exec := pipeline.New(pipeline.Options{
		Generator:      &fakeGenerator{},
		Assets:         newMemoryAssets(),
		PostProcessor:  &fakeProcessor{},
		PostProcessing: true,
		ImagesPerJob:   1,
		Targets:        map[string]pipeline.PublishTarget{"printify": printify},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}, Platforms: []string{"printify"}, AutoPublish: true})

	var progress []int
	err := exec.Execute(context.Background(), job, func(j *queue.Job) { progress = append(progress, j.Progress) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := progress; len(got) != 4 || got[0] != 25 || got[1] != 50 || got[2] != 75 || got[3] != 100 {
		t.Fatalf("progress = %v", got)
	}
	if !job.Result.Success || job.Result.Prompt != "test" {
		t.Fatalf("unexpected result %+v", job.Result)
	}
	if len(job.Result.Platforms) != 1 || !job.Result.Platforms[0].Success || job.Result.Platforms[0].ProductID == "" {
		t.Fatalf("expected one successful listing, got %+v", job.Result.Platforms)
	}
	if !job.Result.Platforms[0].Published {
		t.Fatal("expected autoPublish listing to be published")
	}
	draft := printify.drafts[0]
	if !strings.Contains(draft.ImageURL, "transparent") {
		t.Fatalf("expected processed artwork, got %q", draft.ImageURL)
	}
	if len(draft.MockupURLs) != 1 {
		t.Fatalf("expected mockups on draft, got %v", draft.MockupURLs)
	}
	if len(job.Result.Stages) != 4 {
		t.Fatalf("expected four stage outputs, got %+v", job.Result.Stages)
	}
}

func TestExecutePartialPlatformFailure(t *testing.T) {
	exec := pipeline.New(pipeline.Options{
		Generator:    &fakeGenerator{},
		Assets:       newMemoryAssets(),
		ImagesPerJob: 1,
		Targets: map[string]pipeline.PublishTarget{
			"printify": &fakeTarget{name: "printify"},
			"shopify":  &fakeTarget{name: "shopify", err: services.Wrap(services.ErrPublish, "publishing", "shopify", "422", nil)},
		},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}, Platforms: []string{"printify", "shopify"}})

	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("expected completion with partial failure, got %v", err)
	}
	platforms := job.Result.Platforms
	if len(platforms) != 2 {
		t.Fatalf("expected two outcomes, got %+v", platforms)
	}
	if platforms[0].Platform != "printify" || !platforms[0].Success {
		t.Fatalf("first outcome = %+v", platforms[0])
	}
	if platforms[1].Platform != "shopify" || platforms[1].Success || platforms[1].Error == "" {
		t.Fatalf("second outcome = %+v", platforms[1])
	}
	if len(job.Warnings) == 0 {
		t.Fatal("expected partial publish warning")
	}
}

func TestExecuteAllPlatformsFail(t *testing.T) {
	exec := pipeline.New(pipeline.Options{
		Generator: &fakeGenerator{},
		Assets:    newMemoryAssets(),
		Targets:   map[string]pipeline.PublishTarget{"printify": &fakeTarget{name: "printify", err: errBoom}},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt", "mug"}, Platforms: []string{"printify"}})

	err := exec.Execute(context.Background(), job, nil)
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(job.Result.Platforms) != 2 {
		t.Fatalf("expected per-product outcomes even on failure, got %+v", job.Result.Platforms)
	}
	if job.Result.Success {
		t.Fatal("result must not be marked successful")
	}
}

func TestExecuteWithoutPlatformsSkipsPublishing(t *testing.T) {
	exec := pipeline.New(pipeline.Options{Generator: &fakeGenerator{}, Assets: newMemoryAssets()})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}})
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	last := job.Result.Stages[len(job.Result.Stages)-1]
	if last.Name != pipeline.StagePublish || last.Status != queue.StageSkipped {
		t.Fatalf("expected skipped publishing, got %+v", last)
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %d", job.Progress)
	}
}

func TestExecuteUsesDefaultPlatforms(t *testing.T) {
	shopify := &fakeTarget{name: "shopify"}
	exec := pipeline.New(pipeline.Options{
		Generator:        &fakeGenerator{},
		Assets:           newMemoryAssets(),
		Targets:          map[string]pipeline.PublishTarget{"shopify": shopify},
		DefaultPlatforms: []string{"shopify"},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"mug"}})
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(shopify.drafts) != 1 || shopify.drafts[0].Publish {
		t.Fatalf("expected one draft listing, got %+v", shopify.drafts)
	}
	if job.Result.Platforms[0].Published {
		t.Fatal("expected draft when autoPublish is false")
	}
}

func TestExecuteGenerationFailures(t *testing.T) {
	t.Run("zero images", func(t *testing.T) {
		exec := pipeline.New(pipeline.Options{
			Generator:    &fakeGenerator{failIndexes: map[int]bool{0: true, 1: true}},
			Assets:       newMemoryAssets(),
			ImagesPerJob: 2,
		})
		job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}})
		err := exec.Execute(context.Background(), job, nil)
		if !errors.Is(err, services.ErrGeneration) {
			t.Fatalf("expected generation error, got %v", err)
		}
		if len(job.Result.Images) != 2 || job.Result.Images[0].Success {
			t.Fatalf("expected per-image failures recorded, got %+v", job.Result.Images)
		}
	})

	t.Run("partial images", func(t *testing.T) {
		exec := pipeline.New(pipeline.Options{
			Generator:    &fakeGenerator{failIndexes: map[int]bool{1: true}},
			Assets:       newMemoryAssets(),
			ImagesPerJob: 2,
		})
		job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}})
		if err := exec.Execute(context.Background(), job, nil); err != nil {
			t.Fatalf("expected partial success, got %v", err)
		}
		if len(job.Result.SuccessfulImages()) != 1 || len(job.Warnings) == 0 {
			t.Fatalf("expected 1 image and a warning, got %+v %v", job.Result.Images, job.Warnings)
		}
	})

	t.Run("request failure keeps marker", func(t *testing.T) {
		exec := pipeline.New(pipeline.Options{
			Generator: &fakeGenerator{err: services.Wrap(services.ErrAuthorization, "generation", "runpod", "401", nil)},
			Assets:    newMemoryAssets(),
		})
		err := exec.Execute(context.Background(), newJob(queue.Input{Prompt: "x", ProductTypes: []string{"tshirt"}}), nil)
		if !errors.Is(err, services.ErrAuthorization) {
			t.Fatalf("expected authorization error, got %v", err)
		}
	})

	t.Run("unmarked failure becomes generation error", func(t *testing.T) {
		exec := pipeline.New(pipeline.Options{Generator: &fakeGenerator{err: errBoom}, Assets: newMemoryAssets()})
		err := exec.Execute(context.Background(), newJob(queue.Input{Prompt: "x", ProductTypes: []string{"tshirt"}}), nil)
		if !errors.Is(err, services.ErrGeneration) || !errors.Is(err, errBoom) {
			t.Fatalf("expected wrapped generation error, got %v", err)
		}
	})
}

func TestExecutePostProcessingSoftFails(t *testing.T) {
	target := &fakeTarget{name: "printify"}
	exec := pipeline.New(pipeline.Options{
		Generator:      &fakeGenerator{},
		Assets:         newMemoryAssets(),
		PostProcessor:  &fakeProcessor{err: errBoom},
		PostProcessing: true,
		Targets:        map[string]pipeline.PublishTarget{"printify": target},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}, Platforms: []string{"printify"}})
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("expected post-processing failure to be non-fatal, got %v", err)
	}
	if len(job.Warnings) != 1 || !strings.Contains(job.Warnings[0], "post-processing") {
		t.Fatalf("expected post-processing warning, got %v", job.Warnings)
	}
	if !job.Result.Processed[0].Degraded {
		t.Fatalf("expected degraded processed entry, got %+v", job.Result.Processed)
	}
	if target.drafts[0].ImageURL != job.Result.Images[0].URL {
		t.Fatalf("expected original image published, got %q", target.drafts[0].ImageURL)
	}
}

func TestExecuteGenerateOnlyStopsBeforePublishing(t *testing.T) {
	target := &fakeTarget{name: "printify"}
	exec := pipeline.New(pipeline.Options{
		Generator: &fakeGenerator{},
		Assets:    newMemoryAssets(),
		Targets:   map[string]pipeline.PublishTarget{"printify": target},
	})
	job := newJob(queue.Input{Prompt: "test", ProductTypes: []string{"tshirt"}, Platforms: []string{"printify"}})
	job.Type = queue.TypeGenerateOnly
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(target.drafts) != 0 {
		t.Fatal("generate_only must not publish")
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %d", job.Progress)
	}
}

func TestExecuteStopsWhenContextCancelled(t *testing.T) {
	exec := pipeline.New(pipeline.Options{Generator: &fakeGenerator{}, Assets: newMemoryAssets()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exec.Execute(ctx, newJob(queue.Input{Prompt: "x", ProductTypes: []string{"tshirt"}}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteRejectsUnknownType(t *testing.T) {
	exec := pipeline.New(pipeline.Options{})
	job := newJob(queue.Input{Prompt: "x"})
	job.Type = "render"
	if err := exec.Execute(context.Background(), job, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPromptStageFallsBackToTemplate(t *testing.T) {
	gen := &fakeGenerator{}
	exec := pipeline.New(pipeline.Options{
		Prompts:   fakeSynth{err: errBoom},
		Generator: gen,
		Assets:    newMemoryAssets(),
	})
	job := newJob(queue.Input{ThemeConfig: &queue.ThemeConfig{Theme: "retro cats", Style: "vintage"}, ProductTypes: []string{"tshirt"}})
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(job.Result.Prompt, "retro cats vintage design") {
		t.Fatalf("expected template prompt, got %q", job.Result.Prompt)
	}
	if gen.prompts[0] != job.Result.Prompt {
		t.Fatalf("generator received %q", gen.prompts[0])
	}
	if len(job.Warnings) != 1 {
		t.Fatalf("expected fallback warning, got %v", job.Warnings)
	}
}

func TestPromptStageUsesSynthesizer(t *testing.T) {
	exec := pipeline.New(pipeline.Options{
		Prompts:   fakeSynth{prompt: "  llm prompt  "},
		Generator: &fakeGenerator{},
		Assets:    newMemoryAssets(),
	})
	job := newJob(queue.Input{ThemeConfig: &queue.ThemeConfig{Theme: "cats"}, ProductTypes: []string{"tshirt"}})
	if err := exec.Execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Result.Prompt != "llm prompt" {
		t.Fatalf("prompt = %q", job.Result.Prompt)
	}
}

func TestHealthCheckReportsMissingCollaborators(t *testing.T) {
	exec := pipeline.New(pipeline.Options{DefaultPlatforms: []string{"printify"}})
	checks := exec.HealthCheck(context.Background())
	if len(checks) != 4 {
		t.Fatalf("expected four checks, got %d", len(checks))
	}
	if checks[1].Ready {
		t.Fatal("generation without generator must be unhealthy")
	}
	if checks[3].Ready {
		t.Fatal("publishing with unconfigured default platform must be unhealthy")
	}
}
