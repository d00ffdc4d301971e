// Package postprocess talks to the background-removal and mockup service.
package postprocess

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

// Config captures the service endpoint and which operations to perform.
type Config struct {
	BaseURL          string
	APIKey           string
	RemoveBackground bool
	Mockups          bool
	Timeout          time.Duration
}

// Client implements pipeline.PostProcessor.
type Client struct {
	cfg  Config
	http *httpapi.Client
}

// NewClient constructs a post-processing client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: httpapi.New("postprocess", cfg.BaseURL, cfg.Timeout, httpapi.Bearer(strings.TrimSpace(cfg.APIKey))),
	}
}

type removeBackgroundRequest struct {
	ImageURL string `json:"image_url"`
}

type removeBackgroundResponse struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
}

type mockupRequest struct {
	ImageURL    string `json:"image_url"`
	ProductType string `json:"product_type"`
}

type mockupResponse struct {
	Mockups []string `json:"mockups"`
}

// Process removes the background (when enabled) and renders mockups for
// productType (when enabled). Mockups are rendered from the source image.
func (c *Client) Process(ctx context.Context, img pipeline.SourceImage, productType string) (pipeline.Processed, error) {
	var out pipeline.Processed
	if strings.TrimSpace(img.URL) == "" {
		return out, services.Wrap(services.ErrValidation, "postprocess", "process", "source image url is required", nil)
	}
	if c.cfg.RemoveBackground {
		var resp removeBackgroundResponse
		if err := c.http.JSON(ctx, http.MethodPost, "remove-background", removeBackgroundRequest{ImageURL: img.URL}, &resp); err != nil {
			return out, err
		}
		payload := resp.Image
		if _, data, ok := strings.Cut(payload, ","); ok && strings.HasPrefix(payload, "data:") {
			payload = data
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil || len(data) == 0 {
			return out, services.Wrap(services.ErrProcessing, "postprocess", "remove background", "invalid image payload", err)
		}
		out.Transparent = data
		out.ContentType = resp.ContentType
		if out.ContentType == "" {
			out.ContentType = "image/png"
		}
	}
	if c.cfg.Mockups {
		var resp mockupResponse
		req := mockupRequest{ImageURL: img.URL, ProductType: productType}
		if err := c.http.JSON(ctx, http.MethodPost, "mockups", req, &resp); err != nil {
			return out, err
		}
		for _, u := range resp.Mockups {
			if u = strings.TrimSpace(u); u != "" {
				out.MockupURLs = append(out.MockupURLs, u)
			}
		}
	}
	return out, nil
}

// Ping checks the service health route.
func (c *Client) Ping(ctx context.Context) error {
	return c.http.JSON(ctx, http.MethodGet, "health", nil, nil)
}
