package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"podforge/internal/catalog"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
	"podforge/internal/stage"
)

type publishStage struct {
	targets  map[string]PublishTarget
	defaults []string
	logger   *slog.Logger
}

func (s *publishStage) Prepare(_ context.Context, job *queue.Job) error {
	if job.Result == nil || len(job.Result.SuccessfulImages()) == 0 {
		return services.Wrap(services.ErrGeneration, StagePublish, "prepare", "no generated image to publish", nil)
	}
	return nil
}

// platformsFor returns the requested platforms, or the configured defaults
// when the job did not name any.
func (s *publishStage) platformsFor(job *queue.Job) []string {
	if len(job.Input.Platforms) > 0 {
		return job.Input.Platforms
	}
	return s.defaults
}

// Execute publishes every (product type, platform) pair independently. The
// stage fails only when every attempt failed.
func (s *publishStage) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	result := stage.EnsureResult(job)
	platforms := s.platformsFor(job)
	if len(platforms) == 0 {
		stage.Record(job, StagePublish, queue.StageSkipped, "no platforms requested", started)
		return nil
	}
	logger := logging.WithContext(ctx, s.logger)

	var outcomes []queue.PlatformOutcome
	var errs []string
	for _, productType := range job.Input.ProductTypes {
		product, ok := catalog.Lookup(productType)
		if !ok {
			for _, platform := range platforms {
				outcomes = append(outcomes, queue.PlatformOutcome{
					Platform: platform, ProductType: productType,
					Error: fmt.Sprintf("unknown product type %q", productType),
				})
			}
			errs = append(errs, fmt.Sprintf("unknown product type %q", productType))
			continue
		}
		imageURL, mockups := designFor(result, productType)
		draft := BuildDraft(job, product, imageURL, mockups)

		for _, platform := range platforms {
			outcome := queue.PlatformOutcome{Platform: platform, ProductType: productType}
			target := s.targets[platform]
			if target == nil {
				outcome.Error = fmt.Sprintf("platform %s not configured", platform)
				outcomes = append(outcomes, outcome)
				errs = append(errs, platform+": not configured")
				continue
			}
			listing, err := target.Publish(ctx, draft)
			if err != nil {
				if ctx.Err() != nil {
					result.Platforms = outcomes
					return ctx.Err()
				}
				outcome.Error = err.Error()
				errs = append(errs, fmt.Sprintf("%s/%s: %v", platform, productType, err))
				logging.WarnWithContext(logger, "publish failed", "publish_failed",
					logging.String(logging.FieldPlatform, platform),
					logging.String("product_type", productType),
					logging.Error(err),
					logging.String(logging.FieldImpact, "listing missing on this platform; other platforms unaffected"),
				)
				outcomes = append(outcomes, outcome)
				continue
			}
			outcome.Success = true
			outcome.ProductID = listing.ProductID
			outcome.URL = listing.URL
			outcome.Published = listing.Published
			logger.Info("listing created",
				logging.String(logging.FieldPlatform, platform),
				logging.String("product_type", productType),
				logging.String("product_id", listing.ProductID),
				logging.Bool("published", listing.Published),
			)
			outcomes = append(outcomes, outcome)
		}
	}
	result.Platforms = outcomes

	succeeded, attempted := result.PublishCounts()
	detail := fmt.Sprintf("%d/%d listings", succeeded, attempted)
	if succeeded == 0 {
		stage.Record(job, StagePublish, queue.StageFailed, detail, started)
		return services.Wrap(services.ErrPublish, StagePublish, "publish",
			fmt.Sprintf("all %d publish attempts failed: %s", attempted, strings.Join(errs, "; ")), nil)
	}
	status := queue.StageCompleted
	if succeeded < attempted {
		status = queue.StageDegraded
		job.AddWarning(fmt.Sprintf("publishing: %d of %d listings failed", attempted-succeeded, attempted))
	}
	stage.Record(job, StagePublish, status, detail, started)
	return nil
}

// designFor picks the artwork for a product type: the processed variant of
// the first successful image when available, else the raw image.
func designFor(result *queue.Result, productType string) (string, []string) {
	images := result.SuccessfulImages()
	if len(images) == 0 {
		return "", nil
	}
	for _, p := range result.Processed {
		if p.ProductType == productType && p.ImageIndex == images[0].Index {
			return p.TransparentURL, p.MockupURLs
		}
	}
	return images[0].URL, nil
}

func (s *publishStage) HealthCheck(ctx context.Context) stage.Health {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if pinger, ok := s.targets[name].(Pinger); ok {
			if err := pinger.Ping(ctx); err != nil {
				return stage.Unhealthy(StagePublish, fmt.Sprintf("%s: %v", name, err))
			}
		}
	}
	for _, name := range s.defaults {
		if s.targets[name] == nil {
			return stage.Unhealthy(StagePublish, fmt.Sprintf("default platform %s not configured", name))
		}
	}
	return stage.Healthy(StagePublish)
}
