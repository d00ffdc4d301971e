package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
	"podforge/internal/stage"
)

// Stage names, also used as StageOutput names and log stage fields.
const (
	StagePrompt      = "prompt"
	StageGeneration  = "generation"
	StagePostProcess = "postprocess"
	StagePublish     = "publishing"
)

// Options wires collaborators into an Executor.
type Options struct {
	Logger         *slog.Logger
	StageOverrides map[string]string

	Prompts          PromptSynthesizer
	Generator        ImageGenerator
	Assets           AssetStore
	PostProcessor    PostProcessor
	PostProcessing   bool
	ImagesPerJob     int
	Targets          map[string]PublishTarget
	DefaultPlatforms []string
}

type step struct {
	name     string
	handler  stage.Handler
	progress int
	logger   *slog.Logger
}

// ProgressFunc is called after each stage with the job's updated progress.
type ProgressFunc func(job *queue.Job)

// Executor runs a job's stages in order.
type Executor struct {
	logger *slog.Logger
	steps  map[queue.Type][]step
}

// New builds an Executor. Prompts defaults to TemplatePrompts.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	forStage := func(name string) *slog.Logger {
		return logging.ForStage(logger, name, opts.StageOverrides)
	}

	prompt := &promptStage{synth: opts.Prompts, logger: forStage(StagePrompt)}
	generation := &generationStage{
		generator: opts.Generator,
		assets:    opts.Assets,
		count:     opts.ImagesPerJob,
		logger:    forStage(StageGeneration),
	}
	post := &postProcessStage{
		processor: opts.PostProcessor,
		assets:    opts.Assets,
		enabled:   opts.PostProcessing,
		logger:    forStage(StagePostProcess),
	}
	targets := make(map[string]PublishTarget, len(opts.Targets))
	for name, target := range opts.Targets {
		if target != nil {
			targets[name] = target
		}
	}
	publish := &publishStage{
		targets:  targets,
		defaults: append([]string(nil), opts.DefaultPlatforms...),
		logger:   forStage(StagePublish),
	}

	return &Executor{
		logger: logger,
		steps: map[queue.Type][]step{
			queue.TypeFullPipeline: {
				{name: StagePrompt, handler: prompt, progress: 25, logger: prompt.logger},
				{name: StageGeneration, handler: generation, progress: 50, logger: generation.logger},
				{name: StagePostProcess, handler: post, progress: 75, logger: post.logger},
				{name: StagePublish, handler: publish, progress: 100, logger: publish.logger},
			},
			queue.TypeGenerateOnly: {
				{name: StagePrompt, handler: prompt, progress: 25, logger: prompt.logger},
				{name: StageGeneration, handler: generation, progress: 50, logger: generation.logger},
				{name: StagePostProcess, handler: post, progress: 100, logger: post.logger},
			},
		},
	}
}

// Execute runs every stage for the job's type, mutating job.Result and
// job.Warnings. It returns the first stage error, already classified with a
// services marker, or the context error when ctx ends between stages.
func (e *Executor) Execute(ctx context.Context, job *queue.Job, progress ProgressFunc) error {
	jobType := job.Type
	if jobType == "" {
		jobType = queue.TypeFullPipeline
	}
	steps, ok := e.steps[jobType]
	if !ok {
		return services.Wrap(services.ErrValidation, "pipeline", "execute", fmt.Sprintf("unsupported job type %q", job.Type), nil)
	}
	stage.EnsureResult(job)

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		stageLogger := logging.WithContext(ctx, st.logger)
		started := time.Now()
		stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

		if err := st.handler.Prepare(ctx, job); err != nil {
			return e.fail(stageLogger, job, st.name, started, err)
		}
		if err := st.handler.Execute(ctx, job); err != nil {
			return e.fail(stageLogger, job, st.name, started, err)
		}

		job.SetProgress(st.name, st.progress)
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Int("progress", job.Progress),
			logging.Duration("stage_duration", time.Since(started)),
		)
		if progress != nil {
			progress(job)
		}
	}
	job.Result.Success = true
	return nil
}

func (e *Executor) fail(logger *slog.Logger, job *queue.Job, name string, started time.Time, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("stage interrupted", logging.Error(err))
		return err
	}
	if !hasStageRecord(job, name) {
		stage.Record(job, name, queue.StageFailed, err.Error(), started)
	}
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
	return err
}

func hasStageRecord(job *queue.Job, name string) bool {
	if job.Result == nil {
		return false
	}
	for _, out := range job.Result.Stages {
		if out.Name == name {
			return true
		}
	}
	return false
}

func hintFor(err error) string {
	switch services.Marker(err) {
	case services.ErrAuthorization:
		return "check collaborator API credentials"
	case services.ErrRateLimit:
		return "collaborator rate limit hit; job will back off"
	case services.ErrValidation:
		return "fix the job input and resubmit"
	case services.ErrConfiguration:
		return "check podforge config"
	default:
		return "check collaborator availability"
	}
}

// HealthCheck reports readiness of every distinct stage.
func (e *Executor) HealthCheck(ctx context.Context) []stage.Health {
	steps := e.steps[queue.TypeFullPipeline]
	out := make([]stage.Health, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.handler.HealthCheck(ctx))
	}
	return out
}
