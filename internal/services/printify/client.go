// Package printify publishes products through the Printify REST API.
package printify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

const (
	defaultBaseURL = "https://api.printify.com/v1"
	maxVariants    = 20
)

// Config captures API credentials and the target shop.
type Config struct {
	BaseURL  string
	APIToken string
	ShopID   string
	Timeout  time.Duration
}

// Client implements pipeline.PublishTarget for Printify.
type Client struct {
	cfg  Config
	http *httpapi.Client

	mu       sync.Mutex
	variants map[string][]int
}

// NewClient constructs a Printify client.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:      cfg,
		http:     httpapi.New("printify", cfg.BaseURL, cfg.Timeout, httpapi.Bearer(strings.TrimSpace(cfg.APIToken))),
		variants: make(map[string][]int),
	}
}

// Name returns the platform identifier.
func (c *Client) Name() string { return "printify" }

type uploadRequest struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

type idResponse struct {
	ID string `json:"id"`
}

type variantList struct {
	Variants []struct {
		ID int `json:"id"`
	} `json:"variants"`
}

type productVariant struct {
	ID        int  `json:"id"`
	Price     int  `json:"price"`
	IsEnabled bool `json:"is_enabled"`
}

type placedImage struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
	Angle int     `json:"angle"`
}

type placeholder struct {
	Position string        `json:"position"`
	Images   []placedImage `json:"images"`
}

type printArea struct {
	VariantIDs   []int         `json:"variant_ids"`
	Placeholders []placeholder `json:"placeholders"`
}

type productRequest struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Tags            []string         `json:"tags,omitempty"`
	BlueprintID     int              `json:"blueprint_id"`
	PrintProviderID int              `json:"print_provider_id"`
	Variants        []productVariant `json:"variants"`
	PrintAreas      []printArea      `json:"print_areas"`
}

type publishRequest struct {
	Title       bool `json:"title"`
	Description bool `json:"description"`
	Images      bool `json:"images"`
	Variants    bool `json:"variants"`
	Tags        bool `json:"tags"`
}

// Publish uploads the design, creates the product, and publishes it to the
// shop's sales channel when draft.Publish is set.
func (c *Client) Publish(ctx context.Context, draft pipeline.ProductDraft) (pipeline.Listing, error) {
	var listing pipeline.Listing
	if strings.TrimSpace(c.cfg.ShopID) == "" {
		return listing, services.Wrap(services.ErrConfiguration, "publishing", "printify", "shop_id not configured", nil)
	}
	if draft.Product.BlueprintID == 0 {
		return listing, services.Wrap(services.ErrValidation, "publishing", "printify", fmt.Sprintf("product %q has no blueprint", draft.ProductType), nil)
	}

	var upload idResponse
	fileName := draft.Handle + ".png"
	if err := c.http.JSON(ctx, http.MethodPost, "uploads/images.json", uploadRequest{FileName: fileName, URL: draft.ImageURL}, &upload); err != nil {
		return listing, err
	}
	if upload.ID == "" {
		return listing, services.Wrap(services.ErrPublish, "publishing", "printify upload", "response carried no image id", nil)
	}

	variantIDs, err := c.variantIDs(ctx, draft.Product.BlueprintID, draft.Product.ProviderID)
	if err != nil {
		return listing, err
	}
	req := productRequest{
		Title:           draft.Title,
		Description:     draft.Description,
		Tags:            draft.Tags,
		BlueprintID:     draft.Product.BlueprintID,
		PrintProviderID: draft.Product.ProviderID,
		PrintAreas: []printArea{{
			VariantIDs: variantIDs,
			Placeholders: []placeholder{{
				Position: "front",
				Images:   []placedImage{{ID: upload.ID, X: 0.5, Y: 0.5, Scale: 1}},
			}},
		}},
	}
	for _, id := range variantIDs {
		req.Variants = append(req.Variants, productVariant{ID: id, Price: draft.PriceCents, IsEnabled: true})
	}

	var product idResponse
	if err := c.http.JSON(ctx, http.MethodPost, c.shopPath("products.json"), req, &product); err != nil {
		return listing, err
	}
	if product.ID == "" {
		return listing, services.Wrap(services.ErrPublish, "publishing", "printify create", "response carried no product id", nil)
	}
	listing.ProductID = product.ID
	listing.URL = fmt.Sprintf("https://printify.com/app/store/%s/products/%s", c.cfg.ShopID, product.ID)

	if draft.Publish {
		all := publishRequest{Title: true, Description: true, Images: true, Variants: true, Tags: true}
		if err := c.http.JSON(ctx, http.MethodPost, c.shopPath("products/"+product.ID+"/publish.json"), all, nil); err != nil {
			return listing, err
		}
		listing.Published = true
	}
	return listing, nil
}

// variantIDs returns the first enabled variants for a blueprint and
// provider, cached per pair.
func (c *Client) variantIDs(ctx context.Context, blueprint, provider int) ([]int, error) {
	key := fmt.Sprintf("%d/%d", blueprint, provider)
	c.mu.Lock()
	cached, ok := c.variants[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	var list variantList
	path := fmt.Sprintf("catalog/blueprints/%d/print_providers/%d/variants.json", blueprint, provider)
	if err := c.http.JSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	ids := make([]int, 0, maxVariants)
	for _, v := range list.Variants {
		if len(ids) == maxVariants {
			break
		}
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrPublish, "publishing", "printify variants", "no variants for "+key, nil)
	}
	c.mu.Lock()
	c.variants[key] = ids
	c.mu.Unlock()
	return ids, nil
}

func (c *Client) shopPath(suffix string) string {
	return "shops/" + strings.TrimSpace(c.cfg.ShopID) + "/" + suffix
}

// Ping lists shops to verify the token.
func (c *Client) Ping(ctx context.Context) error {
	return c.http.JSON(ctx, http.MethodGet, "shops.json", nil, nil)
}
