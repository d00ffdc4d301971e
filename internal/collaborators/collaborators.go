// Package collaborators builds the external service clients the pipeline
// depends on from configuration.
package collaborators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/preflight"
	"podforge/internal/services/assets"
	"podforge/internal/services/llm"
	"podforge/internal/services/postprocess"
	"podforge/internal/services/printify"
	"podforge/internal/services/runpod"
	"podforge/internal/services/shopify"
)

// Set holds one client per collaborator role.
type Set struct {
	Prompts       pipeline.PromptSynthesizer
	Generator     pipeline.ImageGenerator
	Assets        assets.Store
	PostProcessor pipeline.PostProcessor
	Targets       map[string]pipeline.PublishTarget

	probes []preflight.Probe
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Build constructs the clients enabled in cfg. Prompt synthesis falls back
// to templates when the LLM is disabled; post-processing is nil when no
// service URL is configured.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Set, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	set := &Set{Targets: make(map[string]pipeline.PublishTarget)}

	store, err := assets.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	set.Assets = store
	set.probes = append(set.probes, preflight.Probe{Name: "Asset store (" + cfg.Assets.Backend + ")", Check: store.Ping})

	gen := runpod.NewClient(runpod.Config{
		BaseURL:      cfg.Generation.BaseURL,
		APIKey:       cfg.Generation.APIKey,
		EndpointID:   cfg.Generation.EndpointID,
		Width:        cfg.Generation.Width,
		Height:       cfg.Generation.Height,
		Steps:        cfg.Generation.Steps,
		PollInterval: time.Duration(cfg.Generation.PollIntervalMillis) * time.Millisecond,
		Timeout:      seconds(cfg.Generation.TimeoutSeconds),
	})
	set.Generator = gen
	set.probes = append(set.probes, preflight.Probe{Name: "Image generation", Check: gen.Ping})

	if cfg.PromptLLM.Enabled {
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.PromptLLM.APIKey,
			BaseURL:        cfg.PromptLLM.BaseURL,
			Model:          cfg.PromptLLM.Model,
			Referer:        cfg.PromptLLM.Referer,
			Title:          cfg.PromptLLM.Title,
			TimeoutSeconds: cfg.PromptLLM.TimeoutSeconds,
		})
		set.Prompts = client
		set.probes = append(set.probes, preflight.Probe{Name: "Prompt LLM", Check: client.Ping})
	} else {
		set.Prompts = pipeline.TemplatePrompts{}
	}

	if cfg.Pipeline.PostProcessing && cfg.PostProcess.BaseURL != "" {
		client := postprocess.NewClient(postprocess.Config{
			BaseURL:          cfg.PostProcess.BaseURL,
			APIKey:           cfg.PostProcess.APIKey,
			RemoveBackground: cfg.PostProcess.RemoveBackground,
			Mockups:          cfg.PostProcess.Mockups,
			Timeout:          seconds(cfg.PostProcess.TimeoutSeconds),
		})
		set.PostProcessor = client
		set.probes = append(set.probes, preflight.Probe{Name: "Post-processing", Check: client.Ping})
	} else if cfg.Pipeline.PostProcessing {
		logging.WarnWithContext(logger, "post-processing enabled without a service url; stage will be skipped", "postprocess_unconfigured",
			logging.String(logging.FieldErrorHint, "set postprocess.base_url or disable pipeline.post_processing"),
			logging.String(logging.FieldImpact, "original images are published without background removal or mockups"),
		)
	}

	if cfg.Printify.Enabled {
		client := printify.NewClient(printify.Config{
			BaseURL:  cfg.Printify.BaseURL,
			APIToken: cfg.Printify.APIToken,
			ShopID:   cfg.Printify.ShopID,
			Timeout:  seconds(cfg.Printify.TimeoutSeconds),
		})
		set.Targets[config.PlatformPrintify] = client
		set.probes = append(set.probes, preflight.Probe{Name: "Printify", Check: client.Ping})
	}
	if cfg.Shopify.Enabled {
		client := shopify.NewClient(shopify.Config{
			StoreURL:    cfg.Shopify.StoreURL,
			AccessToken: cfg.Shopify.AccessToken,
			APIVersion:  cfg.Shopify.APIVersion,
			Timeout:     seconds(cfg.Shopify.TimeoutSeconds),
		})
		set.Targets[config.PlatformShopify] = client
		set.probes = append(set.probes, preflight.Probe{Name: "Shopify", Check: client.Ping})
	}
	return set, nil
}

// Probes returns reachability checks for every built collaborator.
func (s *Set) Probes() []preflight.Probe {
	return append([]preflight.Probe(nil), s.probes...)
}

// PipelineOptions fills the collaborator fields of pipeline.Options.
func (s *Set) PipelineOptions(cfg *config.Config, logger *slog.Logger) pipeline.Options {
	return pipeline.Options{
		Logger:           logger,
		StageOverrides:   cfg.Logging.StageOverrides,
		Prompts:          s.Prompts,
		Generator:        s.Generator,
		Assets:           s.Assets,
		PostProcessor:    s.PostProcessor,
		PostProcessing:   cfg.Pipeline.PostProcessing,
		ImagesPerJob:     cfg.Pipeline.ImagesPerJob,
		Targets:          s.Targets,
		DefaultPlatforms: cfg.Pipeline.DefaultPlatforms,
	}
}
