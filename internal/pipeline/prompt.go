package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
	"podforge/internal/stage"
)

type promptStage struct {
	synth    PromptSynthesizer
	fallback TemplatePrompts
	logger   *slog.Logger
}

func (s *promptStage) Prepare(_ context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.Input.Prompt) == "" && job.Input.ThemeConfig == nil {
		return services.Wrap(services.ErrValidation, StagePrompt, "resolve prompt", "prompt or themeConfig is required", nil)
	}
	return nil
}

func (s *promptStage) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	result := stage.EnsureResult(job)
	if prompt := strings.TrimSpace(job.Input.Prompt); prompt != "" {
		result.Prompt = prompt
		stage.Record(job, StagePrompt, queue.StageCompleted, "explicit prompt", started)
		return nil
	}

	theme := *job.Input.ThemeConfig
	source := "template"
	var prompt string
	if s.synth != nil {
		p, err := s.synth.Synthesize(ctx, theme)
		switch {
		case err == nil && strings.TrimSpace(p) != "":
			prompt = strings.TrimSpace(p)
			source = "llm"
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "prompt synthesis failed; using template", "prompt_llm_fallback",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check prompt_llm settings and API key"),
				logging.String(logging.FieldImpact, "template prompt used instead of LLM prompt"),
			)
			job.AddWarning("prompt synthesis fell back to template")
		}
	}
	if prompt == "" {
		p, err := s.fallback.Synthesize(ctx, theme)
		if err != nil {
			return err
		}
		prompt = p
	}
	result.Prompt = prompt
	stage.Record(job, StagePrompt, queue.StageCompleted, source+" prompt", started)
	return nil
}

func (s *promptStage) HealthCheck(ctx context.Context) stage.Health {
	if pinger, ok := s.synth.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return stage.Unhealthy(StagePrompt, "prompt LLM unreachable (template fallback active): "+err.Error())
		}
	}
	return stage.Healthy(StagePrompt)
}
