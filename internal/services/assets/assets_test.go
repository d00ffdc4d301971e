package assets_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"podforge/internal/config"
	"podforge/internal/services"
	"podforge/internal/services/assets"
)

func TestLocalPutWritesUnderDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := assets.NewLocal(dir, "http://127.0.0.1:7640/assets/")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	url, err := store.Put(context.Background(), "jobs/abc/image-0.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://127.0.0.1:7640/assets/jobs/abc/image-0.png" {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "jobs", "abc", "image-0.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("read back: %q %v", data, err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestLocalPutRejectsTraversal(t *testing.T) {
	store, err := assets.NewLocal(t.TempDir(), "http://x")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../escape.png", "jobs/../../x"} {
		if _, err := store.Put(context.Background(), key, []byte("x"), ""); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
}

func TestNewSelectsLocalBackendWithAPIURL(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.AssetsDir = t.TempDir()
	cfg.API.Bind = "127.0.0.1:9999"
	store, err := assets.New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	url, err := store.Put(context.Background(), "a.png", []byte("x"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://127.0.0.1:9999/assets/a.png" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Assets.Backend = "ftp"
	if _, err := assets.New(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestS3PutUsesPathStyleEndpoint(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
		ct   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		ct = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := assets.NewS3(context.Background(), assets.S3Config{
		Bucket:          "designs",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Prefix:          "podforge",
		PublicURL:       "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	url, err := store.Put(context.Background(), "jobs/j1/image-0.png", []byte("pngdata"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/podforge/jobs/j1/image-0.png" {
		t.Fatalf("unexpected url %q", url)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/designs/podforge/jobs/j1/image-0.png" {
		t.Fatalf("unexpected request path %q", path)
	}
	if ct != "image/png" || !bytes.Contains(body, []byte("pngdata")) {
		t.Fatalf("unexpected upload content-type=%q body=%q", ct, body)
	}
}

func TestS3RequiresBucket(t *testing.T) {
	_, err := assets.NewS3(context.Background(), assets.S3Config{})
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}
