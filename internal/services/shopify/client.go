// Package shopify publishes products through the Shopify Admin REST API.
package shopify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

const defaultAPIVersion = "2024-10"

// Config captures the store and its admin access token.
type Config struct {
	StoreURL    string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// Client implements pipeline.PublishTarget for Shopify.
type Client struct {
	cfg  Config
	http *httpapi.Client
}

// NewClient constructs a Shopify client. StoreURL may be a bare
// "shop.myshopify.com" host.
func NewClient(cfg Config) *Client {
	store := strings.TrimRight(strings.TrimSpace(cfg.StoreURL), "/")
	if store != "" && !strings.HasPrefix(store, "http://") && !strings.HasPrefix(store, "https://") {
		store = "https://" + store
	}
	cfg.StoreURL = store
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	token := strings.TrimSpace(cfg.AccessToken)
	authorize := func(req *http.Request) {
		if token != "" {
			req.Header.Set("X-Shopify-Access-Token", token)
		}
	}
	base := store + "/admin/api/" + cfg.APIVersion
	return &Client{cfg: cfg, http: httpapi.New("shopify", base, cfg.Timeout, authorize)}
}

// Name returns the platform identifier.
func (c *Client) Name() string { return "shopify" }

type productImage struct {
	Src string `json:"src"`
}

type productVariant struct {
	Price              string `json:"price"`
	RequiresShipping   bool   `json:"requires_shipping"`
	InventoryPolicy    string `json:"inventory_policy"`
	FulfillmentService string `json:"fulfillment_service"`
}

type product struct {
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Handle      string           `json:"handle,omitempty"`
	Tags        string           `json:"tags"`
	Status      string           `json:"status"`
	Images      []productImage   `json:"images"`
	Variants    []productVariant `json:"variants"`
}

type productEnvelope struct {
	Product product `json:"product"`
}

type createdEnvelope struct {
	Product struct {
		ID     int64  `json:"id"`
		Handle string `json:"handle"`
		Status string `json:"status"`
	} `json:"product"`
}

// Publish creates the product as active when draft.Publish is set and as a
// draft otherwise. Mockups are attached after the design image.
func (c *Client) Publish(ctx context.Context, draft pipeline.ProductDraft) (pipeline.Listing, error) {
	var listing pipeline.Listing
	if c.cfg.StoreURL == "" {
		return listing, services.Wrap(services.ErrConfiguration, "publishing", "shopify", "store_url not configured", nil)
	}
	status := "draft"
	if draft.Publish {
		status = "active"
	}
	body := productEnvelope{Product: product{
		Title:       draft.Title,
		BodyHTML:    "<p>" + html.EscapeString(draft.Description) + "</p>",
		Vendor:      "podforge",
		ProductType: draft.Product.Name,
		Handle:      draft.Handle,
		Tags:        strings.Join(draft.Tags, ", "),
		Status:      status,
		Variants: []productVariant{{
			Price:              formatPrice(draft.PriceCents),
			RequiresShipping:   true,
			InventoryPolicy:    "continue",
			FulfillmentService: "manual",
		}},
	}}
	for _, src := range append([]string{draft.ImageURL}, draft.MockupURLs...) {
		if strings.TrimSpace(src) != "" {
			body.Product.Images = append(body.Product.Images, productImage{Src: src})
		}
	}

	var created createdEnvelope
	if err := c.http.JSON(ctx, http.MethodPost, "products.json", body, &created); err != nil {
		return listing, err
	}
	if created.Product.ID == 0 {
		return listing, services.Wrap(services.ErrPublish, "publishing", "shopify create", "response carried no product id", nil)
	}
	listing.ProductID = strconv.FormatInt(created.Product.ID, 10)
	handle := created.Product.Handle
	if handle == "" {
		handle = draft.Handle
	}
	listing.URL = fmt.Sprintf("%s/products/%s", c.cfg.StoreURL, handle)
	listing.Published = created.Product.Status == "active" || (created.Product.Status == "" && draft.Publish)
	return listing, nil
}

// Ping reads the shop resource to verify the token.
func (c *Client) Ping(ctx context.Context) error {
	return c.http.JSON(ctx, http.MethodGet, "shop.json", nil, nil)
}

func formatPrice(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
