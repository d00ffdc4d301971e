package shopify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"podforge/internal/catalog"
	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/shopify"
)

func TestPublishCreatesActiveProduct(t *testing.T) {
	var got struct {
		Product struct {
			Title    string `json:"title"`
			BodyHTML string `json:"body_html"`
			Status   string `json:"status"`
			Tags     string `json:"tags"`
			Images   []struct {
				Src string `json:"src"`
			} `json:"images"`
			Variants []struct {
				Price string `json:"price"`
			} `json:"variants"`
		} `json:"product"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/2024-10/products.json" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Shopify-Access-Token") != "shpat" {
			t.Errorf("missing access token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"product":{"id":8812,"handle":"space-fox-mug","status":"active"}}`))
	}))
	defer srv.Close()

	product, _ := catalog.Lookup("mug")
	client := shopify.NewClient(shopify.Config{StoreURL: srv.URL, AccessToken: "shpat"})
	listing, err := client.Publish(context.Background(), pipeline.ProductDraft{
		ProductType: "mug",
		Product:     product,
		Title:       "Space Fox Mug",
		Description: "Fox & friends",
		Handle:      "space-fox-mug",
		Tags:        []string{"fox", "mug"},
		ImageURL:    "https://cdn.test/fox.png",
		MockupURLs:  []string{"https://cdn.test/mock.png"},
		PriceCents:  1499,
		Publish:     true,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if listing.ProductID != "8812" || !listing.Published || listing.URL != srv.URL+"/products/space-fox-mug" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if got.Product.Status != "active" || got.Product.Variants[0].Price != "14.99" || got.Product.Tags != "fox, mug" {
		t.Fatalf("unexpected request body %+v", got.Product)
	}
	if got.Product.BodyHTML != "<p>Fox &amp; friends</p>" || len(got.Product.Images) != 2 {
		t.Fatalf("unexpected body/images %+v", got.Product)
	}
}

func TestPublishDraftStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["product"]["status"] != "draft" {
			t.Errorf("expected draft status, got %v", body["product"]["status"])
		}
		_, _ = w.Write([]byte(`{"product":{"id":1,"status":"draft"}}`))
	}))
	defer srv.Close()

	listing, err := shopify.NewClient(shopify.Config{StoreURL: srv.URL}).Publish(context.Background(), pipeline.ProductDraft{Title: "x", Handle: "x"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if listing.Published {
		t.Fatal("expected draft listing")
	}
}

func TestPublishClassifiesValidationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"title":["can't be blank"]}}`))
	}))
	defer srv.Close()

	_, err := shopify.NewClient(shopify.Config{StoreURL: srv.URL}).Publish(context.Background(), pipeline.ProductDraft{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPublishRequiresStore(t *testing.T) {
	_, err := shopify.NewClient(shopify.Config{}).Publish(context.Background(), pipeline.ProductDraft{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
