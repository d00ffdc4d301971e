package collaborators_test

import (
	"context"
	"testing"

	"podforge/internal/collaborators"
	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/testsupport"
)

func TestBuildDefaultsToTemplatesAndLocalAssets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.PromptLLM.Enabled = false
	cfg.Printify.Enabled = false
	cfg.Shopify.Enabled = false
	cfg.Pipeline.PostProcessing = false

	set, err := collaborators.Build(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := set.Prompts.(pipeline.TemplatePrompts); !ok {
		t.Fatalf("expected template prompts, got %T", set.Prompts)
	}
	if set.PostProcessor != nil {
		t.Fatalf("expected no post-processor, got %T", set.PostProcessor)
	}
	if len(set.Targets) != 0 {
		t.Fatalf("expected no targets, got %v", set.Targets)
	}
	names := map[string]bool{}
	for _, p := range set.Probes() {
		names[p.Name] = true
	}
	if !names["Asset store (local)"] || !names["Image generation"] || len(names) != 2 {
		t.Fatalf("unexpected probes %v", names)
	}
}

func TestBuildWiresEnabledCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.PromptLLM.Enabled = true
	cfg.PromptLLM.APIKey = "k"
	cfg.Printify.Enabled = true
	cfg.Printify.ShopID = "1"
	cfg.Shopify.Enabled = true
	cfg.Shopify.StoreURL = "shop.myshopify.com"
	cfg.Pipeline.PostProcessing = true
	cfg.PostProcess.BaseURL = "http://127.0.0.1:1"

	set, err := collaborators.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := set.Prompts.(pipeline.TemplatePrompts); ok {
		t.Fatal("expected LLM prompts")
	}
	if set.PostProcessor == nil {
		t.Fatal("expected post-processor")
	}
	for _, name := range []string{config.PlatformPrintify, config.PlatformShopify} {
		target, ok := set.Targets[name]
		if !ok || target.Name() != name {
			t.Fatalf("missing target %s in %v", name, set.Targets)
		}
	}
	if got := len(set.Probes()); got != 6 {
		t.Fatalf("expected 6 probes, got %d", got)
	}
	opts := set.PipelineOptions(cfg, logging.NewNop())
	if opts.Generator == nil || opts.Assets == nil || len(opts.Targets) != 2 {
		t.Fatalf("unexpected pipeline options %+v", opts)
	}
}
