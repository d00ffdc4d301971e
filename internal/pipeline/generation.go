package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
	"podforge/internal/stage"
)

type generationStage struct {
	generator ImageGenerator
	assets    AssetStore
	count     int
	logger    *slog.Logger
}

func (s *generationStage) Prepare(_ context.Context, job *queue.Job) error {
	if s.generator == nil {
		return services.Wrap(services.ErrConfiguration, StageGeneration, "prepare", "image generator not configured", nil)
	}
	if s.assets == nil {
		return services.Wrap(services.ErrConfiguration, StageGeneration, "prepare", "asset store not configured", nil)
	}
	if job.Result == nil || job.Result.Prompt == "" {
		return services.Wrap(services.ErrValidation, StageGeneration, "prepare", "prompt not resolved", nil)
	}
	return nil
}

func (s *generationStage) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	logger := logging.WithContext(ctx, s.logger)
	count := s.count
	if count <= 0 {
		count = 1
	}

	images, err := s.generator.Generate(ctx, job.Result.Prompt, count)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if services.Marker(err) == nil {
			err = services.Wrap(services.ErrGeneration, StageGeneration, "generate", "image generation request failed", err)
		}
		return err
	}

	outcomes := make([]queue.ImageOutcome, 0, count)
	var firstErr error
	succeeded := 0
	for _, img := range images {
		outcome := queue.ImageOutcome{Index: img.Index, Seed: img.Seed}
		if img.Err != nil {
			outcome.Error = img.Err.Error()
			if firstErr == nil {
				firstErr = img.Err
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		url, putErr := s.assets.Put(ctx, AssetKey(job.ID, img.Index, "", extensionFor(contentType)), img.Data, contentType)
		if putErr != nil {
			outcome.Error = "store image: " + putErr.Error()
			if firstErr == nil {
				firstErr = putErr
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Success = true
		outcome.URL = url
		succeeded++
		outcomes = append(outcomes, outcome)
	}
	job.Result.Images = outcomes

	if succeeded == 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrGeneration, StageGeneration, "generate",
			fmt.Sprintf("0/%d images generated", count), firstErr)
	}
	detail := fmt.Sprintf("%d/%d images", succeeded, count)
	status := queue.StageCompleted
	if succeeded < count {
		status = queue.StageDegraded
		job.AddWarning(fmt.Sprintf("generation: %d of %d images failed", count-succeeded, count))
		logging.WarnWithContext(logger, "partial image generation", "generation_partial",
			logging.Int("succeeded", succeeded),
			logging.Int("requested", count),
			logging.Error(firstErr),
			logging.String(logging.FieldImpact, "job continues with the images that succeeded"),
		)
	}
	stage.Record(job, StageGeneration, status, detail, started)
	logger.Info("images generated", logging.Int("succeeded", succeeded), logging.Int("requested", count))
	return nil
}

func (s *generationStage) HealthCheck(ctx context.Context) stage.Health {
	if s.generator == nil {
		return stage.Unhealthy(StageGeneration, "image generator not configured")
	}
	if s.assets == nil {
		return stage.Unhealthy(StageGeneration, "asset store not configured")
	}
	if pinger, ok := s.generator.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return stage.Unhealthy(StageGeneration, err.Error())
		}
	}
	return stage.Healthy(StageGeneration)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
