package runpod_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"podforge/internal/services"
	"podforge/internal/services/runpod"
	"podforge/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *runpod.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return runpod.NewClient(runpod.Config{
		BaseURL:      srv.URL,
		APIKey:       "rp-key",
		EndpointID:   "ep1",
		PollInterval: 5 * time.Millisecond,
		Timeout:      2 * time.Second,
	}, runpod.WithSeedSource(func() int64 { return 42 }))
}

func TestGeneratePollsUntilCompleted(t *testing.T) {
	png := testsupport.PNG()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ep1/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer rp-key" {
			t.Errorf("missing bearer token")
		}
		var body struct {
			Input struct {
				Workflow map[string]struct {
					ClassType string         `json:"class_type"`
					Inputs    map[string]any `json:"inputs"`
				} `json:"workflow"`
				ClientID string `json:"client_id"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Input.ClientID == "" {
			t.Errorf("expected client id")
		}
		sampler := body.Input.Workflow["3"]
		if sampler.ClassType != "KSampler" || sampler.Inputs["seed"] != float64(42) {
			t.Errorf("unexpected sampler node: %+v", sampler)
		}
		if body.Input.Workflow["6"].Inputs["text"] != "a fox" {
			t.Errorf("prompt not in workflow: %+v", body.Input.Workflow["6"])
		}
		_, _ = w.Write([]byte(`{"id":"run-1","status":"IN_QUEUE"}`))
	})
	mux.HandleFunc("GET /ep1/status/run-1", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"id":"run-1","status":"IN_PROGRESS"}`))
			return
		}
		out := map[string]any{"id": "run-1", "status": "COMPLETED", "output": map[string]any{
			"images": []any{map[string]any{"data": base64.StdEncoding.EncodeToString(png), "type": "base64"}},
		}}
		_ = json.NewEncoder(w).Encode(out)
	})

	images, err := newClient(t, mux).Generate(context.Background(), "a fox", 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(images) != 1 || images[0].Err != nil {
		t.Fatalf("unexpected images: %+v", images)
	}
	if !bytes.Equal(images[0].Data, png) || images[0].ContentType != "image/png" || images[0].Seed != 42 {
		t.Fatalf("unexpected image: %+v", images[0])
	}
}

func TestGenerateAcceptsDataURLAndDownloads(t *testing.T) {
	png := testsupport.PNG()
	var runs atomic.Int32
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("POST /ep1/run", func(w http.ResponseWriter, _ *http.Request) {
		if runs.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "a", "status": "COMPLETED", "output": map[string]any{
				"images": []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString(png)},
			}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "b", "status": "COMPLETED", "output": map[string]any{
			"image_url": srvURL + "/files/out.png",
		}})
	})
	mux.HandleFunc("GET /files/out.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	client := runpod.NewClient(runpod.Config{BaseURL: srv.URL, EndpointID: "ep1", PollInterval: time.Millisecond})

	images, err := client.Generate(context.Background(), "x", 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, img := range images {
		if img.Err != nil || !bytes.Equal(img.Data, png) {
			t.Fatalf("image %d: err=%v len=%d", img.Index, img.Err, len(img.Data))
		}
	}
}

func TestGenerateReportsPerImageFailure(t *testing.T) {
	var runs atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ep1/run", func(w http.ResponseWriter, _ *http.Request) {
		if runs.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"id":"a","status":"FAILED","error":"out of memory"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "b", "status": "COMPLETED", "output": map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString(testsupport.PNG())},
		}})
	})

	images, err := newClient(t, mux).Generate(context.Background(), "x", 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !errors.Is(images[0].Err, services.ErrGeneration) {
		t.Fatalf("expected generation error for first image, got %v", images[0].Err)
	}
	if images[1].Err != nil {
		t.Fatalf("expected second image ok, got %v", images[1].Err)
	}
}

func TestGenerateClassifiesHTTPErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ep1/run", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	images, err := newClient(t, mux).Generate(context.Background(), "x", 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !errors.Is(images[0].Err, services.ErrRateLimit) {
		t.Fatalf("expected rate limit marker, got %v", images[0].Err)
	}
}

func TestPingUsesHealthRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ep1/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"workers":{"idle":1}}`))
	})
	if err := newClient(t, mux).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
