package pipeline

import (
	"context"

	"podforge/internal/catalog"
	"podforge/internal/queue"
)

// GeneratedImage is one image returned by an ImageGenerator. Err is set when
// this particular image failed while others in the same request succeeded.
type GeneratedImage struct {
	Index       int
	Data        []byte
	ContentType string
	Seed        int64
	Err         error
}

// ImageGenerator produces count images for a prompt. A returned error means
// the whole request failed; per-image failures are reported in the slice.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, count int) ([]GeneratedImage, error)
}

// SourceImage identifies a stored image handed to post-processing.
type SourceImage struct {
	Index int
	URL   string
}

// Processed is the output of post-processing one image for one product type.
// Transparent is empty when background removal was not performed.
type Processed struct {
	Transparent []byte
	ContentType string
	MockupURLs  []string
}

// PostProcessor removes backgrounds and renders mockups.
type PostProcessor interface {
	Process(ctx context.Context, img SourceImage, productType string) (Processed, error)
}

// ProductDraft is everything a publish target needs to create one listing.
type ProductDraft struct {
	JobID       string
	ProductType string
	Product     catalog.Product
	Title       string
	Description string
	Handle      string
	Tags        []string
	ImageURL    string
	MockupURLs  []string
	PriceCents  int
	Publish     bool
}

// Listing is the result of a successful publish call. Published is false
// when the product was created as a draft.
type Listing struct {
	ProductID string
	URL       string
	Published bool
}

// PublishTarget creates listings on one sales platform.
type PublishTarget interface {
	Name() string
	Publish(ctx context.Context, draft ProductDraft) (Listing, error)
}

// PromptSynthesizer turns a theme into an image prompt.
type PromptSynthesizer interface {
	Synthesize(ctx context.Context, theme queue.ThemeConfig) (string, error)
}

// AssetStore persists image bytes and returns a URL publishers can fetch.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Pinger is implemented by collaborators that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
