// Package runpod generates images on a RunPod serverless ComfyUI endpoint.
package runpod

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

const (
	statusCompleted = "COMPLETED"
	statusFailed    = "FAILED"
	statusCancelled = "CANCELLED"
	statusTimedOut  = "TIMED_OUT"

	checkpoint     = "sd_xl_base_1.0.safetensors"
	negativePrompt = "text, watermark, signature, blurry, low quality, cropped, frame, border"
)

// Config captures endpoint and sampler settings.
type Config struct {
	BaseURL      string
	APIKey       string
	EndpointID   string
	Width        int
	Height       int
	Steps        int
	PollInterval time.Duration
	Timeout      time.Duration
}

// Client implements pipeline.ImageGenerator. Each requested image is a
// separate run so one failed run does not sink the others.
type Client struct {
	cfg  Config
	http *httpapi.Client
	seed func() int64
}

// Option customizes the client.
type Option func(*Client)

// WithSeedSource overrides seed generation (tests).
func WithSeedSource(seed func() int64) Option {
	return func(c *Client) {
		if seed != nil {
			c.seed = seed
		}
	}
}

// NewClient constructs a RunPod client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 1024
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 30
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/" + strings.TrimSpace(cfg.EndpointID)
	c := &Client{
		cfg:  cfg,
		http: httpapi.New("runpod", base, cfg.Timeout, httpapi.Bearer(strings.TrimSpace(cfg.APIKey))),
		seed: func() int64 { return rand.Int64N(1 << 32) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runRequest struct {
	Input runInput `json:"input"`
}

type runInput struct {
	Workflow map[string]any `json:"workflow"`
	ClientID string         `json:"client_id"`
}

type runResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Generate runs count workflows sequentially. Per-image failures are
// reported on the returned images; the error is non-nil only when ctx ends.
func (c *Client) Generate(ctx context.Context, prompt string, count int) ([]pipeline.GeneratedImage, error) {
	if count <= 0 {
		count = 1
	}
	out := make([]pipeline.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		seed := c.seed()
		data, contentType, err := c.generateOne(ctx, prompt, seed)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		out = append(out, pipeline.GeneratedImage{Index: i, Data: data, ContentType: contentType, Seed: seed, Err: err})
	}
	return out, nil
}

func (c *Client) generateOne(ctx context.Context, prompt string, seed int64) ([]byte, string, error) {
	req := runRequest{Input: runInput{Workflow: c.workflow(prompt, seed), ClientID: uuid.NewString()}}
	var resp runResponse
	if err := c.http.JSON(ctx, http.MethodPost, "run", req, &resp); err != nil {
		return nil, "", err
	}
	for resp.Status != statusCompleted {
		switch resp.Status {
		case statusFailed, statusCancelled, statusTimedOut:
			msg := strings.TrimSpace(resp.Error)
			if msg == "" {
				msg = "run ended with status " + resp.Status
			}
			marker := services.ErrGeneration
			if resp.Status == statusTimedOut {
				marker = services.ErrTimeout
			}
			return nil, "", services.Wrap(marker, "generation", "runpod run "+resp.ID, msg, nil)
		}
		if resp.ID == "" {
			return nil, "", services.Wrap(services.ErrGeneration, "generation", "runpod run", "response carried no job id", nil)
		}
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, "", ctx.Err()
		case <-timer.C:
		}
		id := resp.ID
		resp = runResponse{}
		if err := c.http.JSON(ctx, http.MethodGet, "status/"+id, nil, &resp); err != nil {
			return nil, "", err
		}
		if resp.ID == "" {
			resp.ID = id
		}
	}
	return c.decodeOutput(ctx, resp.Output)
}

func (c *Client) workflow(prompt string, seed int64) map[string]any {
	node := func(class string, inputs map[string]any) map[string]any {
		return map[string]any{"class_type": class, "inputs": inputs}
	}
	return map[string]any{
		"3": node("KSampler", map[string]any{
			"seed": seed, "steps": c.cfg.Steps, "cfg": 7.0,
			"sampler_name": "dpmpp_2m", "scheduler": "karras", "denoise": 1,
			"model": []any{"4", 0}, "positive": []any{"6", 0}, "negative": []any{"7", 0}, "latent_image": []any{"5", 0},
		}),
		"4": node("CheckpointLoaderSimple", map[string]any{"ckpt_name": checkpoint}),
		"5": node("EmptyLatentImage", map[string]any{"width": c.cfg.Width, "height": c.cfg.Height, "batch_size": 1}),
		"6": node("CLIPTextEncode", map[string]any{"text": prompt, "clip": []any{"4", 1}}),
		"7": node("CLIPTextEncode", map[string]any{"text": negativePrompt, "clip": []any{"4", 1}}),
		"8": node("VAEDecode", map[string]any{"samples": []any{"3", 0}, "vae": []any{"4", 2}}),
		"9": node("SaveImage", map[string]any{"filename_prefix": "podforge", "images": []any{"8", 0}}),
	}
}

type imageEntry struct {
	Data     string `json:"data"`
	Base64   string `json:"base64"`
	Image    string `json:"image"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
	Type     string `json:"type"`
}

type runOutput struct {
	Images   []json.RawMessage `json:"images"`
	Image    string            `json:"image"`
	ImageURL string            `json:"image_url"`
	Message  json.RawMessage   `json:"message"`
}

// decodeOutput extracts the first image from the shapes ComfyUI workers
// return: images[] of strings or objects, a single image field, or a
// message carrying images.
func (c *Client) decodeOutput(ctx context.Context, raw json.RawMessage) ([]byte, string, error) {
	var out runOutput
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			var direct string
			if json.Unmarshal(raw, &direct) == nil && direct != "" {
				return c.fetchImage(ctx, direct, "")
			}
			return nil, "", services.Wrap(services.ErrGeneration, "generation", "decode output", "unrecognized output", err)
		}
	}
	candidates := out.Images
	if len(candidates) == 0 && len(out.Message) > 0 {
		var msg runOutput
		if json.Unmarshal(out.Message, &msg) == nil {
			candidates = msg.Images
		}
	}
	for _, rawImage := range candidates {
		var s string
		if json.Unmarshal(rawImage, &s) == nil && s != "" {
			return c.fetchImage(ctx, s, "")
		}
		var entry imageEntry
		if json.Unmarshal(rawImage, &entry) == nil {
			for _, v := range []string{entry.Data, entry.Base64, entry.Image, entry.URL, entry.ImageURL} {
				if v != "" {
					return c.fetchImage(ctx, v, entry.Type)
				}
			}
		}
	}
	for _, v := range []string{out.Image, out.ImageURL} {
		if v != "" {
			return c.fetchImage(ctx, v, "")
		}
	}
	return nil, "", services.Wrap(services.ErrGeneration, "generation", "decode output", "no image in output", nil)
}

// fetchImage decodes a data URL or bare base64 payload, or downloads an
// http(s) URL.
func (c *Client) fetchImage(ctx context.Context, value, hint string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		data, contentType, err := c.http.Do(ctx, http.MethodGet, value, nil, "")
		if err != nil {
			return nil, "", err
		}
		return data, contentTypeOr(contentType, hint), nil
	}
	contentType := hint
	if strings.HasPrefix(value, "data:") {
		header, payload, ok := strings.Cut(value, ",")
		if !ok {
			return nil, "", services.Wrap(services.ErrGeneration, "generation", "decode output", "malformed data URL", nil)
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		value = payload
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", services.Wrap(services.ErrGeneration, "generation", "decode output", "invalid base64 image", err)
	}
	if len(data) == 0 {
		return nil, "", services.Wrap(services.ErrGeneration, "generation", "decode output", "empty image", nil)
	}
	return data, contentTypeOr(contentType, http.DetectContentType(data)), nil
}

func contentTypeOr(contentType, fallback string) string {
	contentType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	if contentType == "" || contentType == "base64" || !strings.HasPrefix(contentType, "image/") {
		if strings.HasPrefix(fallback, "image/") {
			return fallback
		}
		return "image/png"
	}
	return contentType
}

// Ping checks the endpoint health route.
func (c *Client) Ping(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.EndpointID) == "" {
		return errors.New("runpod endpoint_id not configured")
	}
	if err := c.http.JSON(ctx, http.MethodGet, "health", nil, nil); err != nil {
		return fmt.Errorf("runpod health: %w", err)
	}
	return nil
}
