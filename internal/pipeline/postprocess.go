package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/stage"
)

type postProcessStage struct {
	processor PostProcessor
	assets    AssetStore
	enabled   bool
	logger    *slog.Logger
}

func (s *postProcessStage) Prepare(context.Context, *queue.Job) error {
	return nil
}

// Execute never fails the job on processor errors: the original image is
// kept for that product type and a warning is recorded.
func (s *postProcessStage) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	result := stage.EnsureResult(job)
	if !s.enabled || s.processor == nil {
		stage.Record(job, StagePostProcess, queue.StageSkipped, "post-processing disabled", started)
		return nil
	}
	logger := logging.WithContext(ctx, s.logger)

	degraded := 0
	var processed []queue.ProcessedImage
	for _, img := range result.SuccessfulImages() {
		for _, productType := range job.Input.ProductTypes {
			entry := queue.ProcessedImage{ImageIndex: img.Index, ProductType: productType, TransparentURL: img.URL}
			out, err := s.processor.Process(ctx, SourceImage{Index: img.Index, URL: img.URL}, productType)
			if err == nil && len(out.Transparent) > 0 {
				contentType := out.ContentType
				if contentType == "" {
					contentType = "image/png"
				}
				var url string
				url, err = s.assets.Put(ctx, AssetKey(job.ID, img.Index, productType+"-transparent", extensionFor(contentType)), out.Transparent, contentType)
				if err == nil {
					entry.TransparentURL = url
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				degraded++
				entry.Degraded = true
				job.AddWarning(fmt.Sprintf("post-processing image %d for %s: %v", img.Index, productType, err))
				logging.WarnWithContext(logger, "post-processing failed; using original image", "postprocess_degraded",
					logging.Int("image_index", img.Index),
					logging.String("product_type", productType),
					logging.Error(err),
					logging.String(logging.FieldImpact, "original image published without background removal or mockups"),
				)
			} else {
				entry.MockupURLs = out.MockupURLs
			}
			processed = append(processed, entry)
		}
	}
	result.Processed = processed

	status := queue.StageCompleted
	if degraded > 0 {
		status = queue.StageDegraded
	}
	stage.Record(job, StagePostProcess, status, fmt.Sprintf("%d processed, %d degraded", len(processed)-degraded, degraded), started)
	return nil
}

func (s *postProcessStage) HealthCheck(ctx context.Context) stage.Health {
	if !s.enabled {
		return stage.Healthy(StagePostProcess)
	}
	if s.processor == nil {
		return stage.Unhealthy(StagePostProcess, "post-processing enabled but no processor configured")
	}
	if pinger, ok := s.processor.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return stage.Unhealthy(StagePostProcess, err.Error())
		}
	}
	return stage.Healthy(StagePostProcess)
}
