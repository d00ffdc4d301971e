package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

type statusTransition struct {
	from Status
	to   Status
}

// allowedTransitions lists every legal status change. running→pending covers
// both retry requeue and crash-recovery demotion; failed→pending is the
// explicit retry operation.
var allowedTransitions = map[statusTransition]struct{}{
	{from: StatusPending, to: StatusRunning}:   {},
	{from: StatusPending, to: StatusCancelled}: {},
	{from: StatusRunning, to: StatusCompleted}: {},
	{from: StatusRunning, to: StatusFailed}:    {},
	{from: StatusRunning, to: StatusPending}:   {},
	{from: StatusFailed, to: StatusPending}:    {},
}

// Type selects which stages a job runs.
type Type string

const (
	// TypeFullPipeline runs prompt, generation, post-processing, and publishing.
	TypeFullPipeline Type = "full_pipeline"
	// TypeGenerateOnly stops after post-processing.
	TypeGenerateOnly Type = "generate_only"
)

// ParseType normalizes a job type, defaulting blanks to TypeFullPipeline.
func ParseType(value string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case "", TypeFullPipeline:
		return TypeFullPipeline, true
	case TypeGenerateOnly:
		return TypeGenerateOnly, true
	default:
		return "", false
	}
}

// ThemeConfig seeds prompt synthesis when no explicit prompt is supplied.
type ThemeConfig struct {
	Theme string `json:"theme" validate:"required,max=200"`
	Style string `json:"style,omitempty" validate:"max=200"`
	Niche string `json:"niche,omitempty" validate:"max=200"`
}

// Input is the caller-supplied description of the work to do.
type Input struct {
	Prompt       string       `json:"prompt,omitempty" validate:"max=2000"`
	ThemeConfig  *ThemeConfig `json:"themeConfig,omitempty"`
	ProductTypes []string     `json:"productTypes" validate:"min=1,max=20,dive,required"`
	Platforms    []string     `json:"platforms,omitempty" validate:"omitempty,max=10,dive,oneof=printify shopify"`
	AutoPublish  bool         `json:"autoPublish"`
	Priority     Priority     `json:"priority" validate:"min=0,max=10"`
}

// ImageOutcome records one requested image from the generation stage.
type ImageOutcome struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Seed    int64  `json:"seed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProcessedImage records post-processing output for one image and product type.
type ProcessedImage struct {
	ImageIndex     int      `json:"imageIndex"`
	ProductType    string   `json:"productType"`
	TransparentURL string   `json:"transparentUrl,omitempty"`
	MockupURLs     []string `json:"mockupUrls,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// PlatformOutcome records one (platform, product type) publish attempt.
type PlatformOutcome struct {
	Platform    string `json:"platform"`
	ProductType string `json:"productType"`
	Success     bool   `json:"success"`
	ProductID   string `json:"productId,omitempty"`
	URL         string `json:"url,omitempty"`
	Published   bool   `json:"published"`
	Error       string `json:"error,omitempty"`
}

// Stage result states.
const (
	StageCompleted = "completed"
	StageDegraded  = "degraded"
	StageSkipped   = "skipped"
	StageFailed    = "failed"
)

// StageOutput summarizes one executed stage.
type StageOutput struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Result is the structured outcome of a job run. It is populated incrementally
// so a failed run still shows what succeeded.
type Result struct {
	Success   bool              `json:"success"`
	Prompt    string            `json:"prompt,omitempty"`
	Images    []ImageOutcome    `json:"images,omitempty"`
	Processed []ProcessedImage  `json:"processed,omitempty"`
	Platforms []PlatformOutcome `json:"platforms,omitempty"`
	Stages    []StageOutput     `json:"stages,omitempty"`
}

// SuccessfulImages returns the images that were generated successfully.
func (r *Result) SuccessfulImages() []ImageOutcome {
	if r == nil {
		return nil
	}
	out := make([]ImageOutcome, 0, len(r.Images))
	for _, img := range r.Images {
		if img.Success {
			out = append(out, img)
		}
	}
	return out
}

// PublishCounts returns succeeded and attempted publish counts.
func (r *Result) PublishCounts() (succeeded, attempted int) {
	if r == nil {
		return 0, 0
	}
	for _, p := range r.Platforms {
		attempted++
		if p.Success {
			succeeded++
		}
	}
	return succeeded, attempted
}

// Job is one unit of pipeline work tracked through the status lifecycle.
type Job struct {
	ID            string     `json:"id"`
	Type          Type       `json:"type"`
	Input         Input      `json:"input"`
	Status        Status     `json:"status"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"maxAttempts"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	Progress      int        `json:"progress"`
	Stage         string     `json:"stage,omitempty"`
	Result        *Result    `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[statusTransition{from: from, to: to}]
	return ok
}

// IsTerminal reports whether the status ends a job's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Duration returns the run time of a finished attempt.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// SetProgress records the current stage and percentage, clamped to [0,100].
func (j *Job) SetProgress(stage string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.Stage = stage
	j.Progress = percent
}

// AddWarning appends a soft-failure annotation.
func (j *Job) AddWarning(msg string) {
	if msg = strings.TrimSpace(msg); msg != "" {
		j.Warnings = append(j.Warnings, msg)
	}
}

// ResetForRun clears the output of a previous attempt so the pipeline
// restarts from its first stage.
func (j *Job) ResetForRun() {
	j.Progress = 0
	j.Stage = ""
	j.Result = nil
	j.Error = ""
	j.Warnings = nil
	j.StartedAt = nil
	j.CompletedAt = nil
}

// Clone returns a deep copy so callers can read or mutate a job without
// holding the owner's lock.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Input = j.Input.clone()
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.NextAttemptAt = cloneTime(j.NextAttemptAt)
	cp.Warnings = append([]string(nil), j.Warnings...)
	if j.Result != nil {
		r := *j.Result
		r.Images = append([]ImageOutcome(nil), j.Result.Images...)
		r.Platforms = append([]PlatformOutcome(nil), j.Result.Platforms...)
		r.Stages = append([]StageOutput(nil), j.Result.Stages...)
		if j.Result.Processed != nil {
			r.Processed = make([]ProcessedImage, len(j.Result.Processed))
			for i, p := range j.Result.Processed {
				p.MockupURLs = append([]string(nil), p.MockupURLs...)
				r.Processed[i] = p
			}
		}
		cp.Result = &r
	}
	return &cp
}

func (in Input) clone() Input {
	cp := in
	cp.ProductTypes = append([]string(nil), in.ProductTypes...)
	cp.Platforms = append([]string(nil), in.Platforms...)
	if in.ThemeConfig != nil {
		theme := *in.ThemeConfig
		cp.ThemeConfig = &theme
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
