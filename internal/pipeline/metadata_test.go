package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"podforge/internal/catalog"
	"podforge/internal/pipeline"
	"podforge/internal/queue"
)

func TestBuildDraftFromTheme(t *testing.T) {
	product, _ := catalog.Lookup("mug")
	job := &queue.Job{ID: "j1", Input: queue.Input{
		ThemeConfig: &queue.ThemeConfig{Theme: "retro space cats", Style: "Vintage", Niche: "Cat Lovers"},
		AutoPublish: true,
	}}
	draft := pipeline.BuildDraft(job, product, "https://img", nil)
	if draft.Title != "Retro Space Cats Coffee Mug" {
		t.Fatalf("title = %q", draft.Title)
	}
	if draft.Handle != "retro-space-cats-coffee-mug" {
		t.Fatalf("handle = %q", draft.Handle)
	}
	if !draft.Publish || draft.PriceCents != product.PriceCents {
		t.Fatalf("unexpected draft %+v", draft)
	}
	want := []string{"mug", "accessories", "retro-space-cats", "vintage", "cat-lovers"}
	if strings.Join(draft.Tags, ",") != strings.Join(want, ",") {
		t.Fatalf("tags = %v", draft.Tags)
	}
}

func TestBuildDraftFromPromptTruncatesSubject(t *testing.T) {
	product, _ := catalog.Lookup("mug")
	job := &queue.Job{Input: queue.Input{Prompt: "a cute red fox drinking coffee in the morning sun, watercolor"}}
	draft := pipeline.BuildDraft(job, product, "", nil)
	if draft.Title != "A Cute Red Fox Drinking Coffee Coffee Mug" {
		t.Fatalf("title = %q", draft.Title)
	}
}

func TestAssetKey(t *testing.T) {
	if got := pipeline.AssetKey("abc", 2, "", "png"); got != "jobs/abc/image-2.png" {
		t.Fatalf("key = %q", got)
	}
	if got := pipeline.AssetKey("abc", 0, "Mens Tshirt transparent", ".png"); got != "jobs/abc/image-0-mens-tshirt-transparent.png" {
		t.Fatalf("key = %q", got)
	}
}

func TestTemplatePromptsDeterministic(t *testing.T) {
	theme := queue.ThemeConfig{Theme: "mountain sunrise", Style: "minimalist", Niche: "hikers"}
	first, err := pipeline.TemplatePrompts{}.Synthesize(context.Background(), theme)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := pipeline.TemplatePrompts{}.Synthesize(context.Background(), theme)
	if first != second {
		t.Fatalf("expected deterministic prompt, got %q and %q", first, second)
	}
	if !strings.HasPrefix(first, "mountain sunrise minimalist design, for hikers fans") {
		t.Fatalf("prompt = %q", first)
	}
	if _, err := (pipeline.TemplatePrompts{}).Synthesize(context.Background(), queue.ThemeConfig{}); err == nil {
		t.Fatal("expected error for empty theme")
	}
}
