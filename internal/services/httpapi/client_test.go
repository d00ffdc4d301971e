package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

func TestJSONRoundTripAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/items" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer srv.Close()

	client := httpapi.New("demo", srv.URL+"/v1/", time.Second, httpapi.Bearer("secret"))
	var out struct {
		ID string `json:"id"`
	}
	if err := client.JSON(context.Background(), http.MethodPost, "items", map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if out.ID != "42" {
		t.Fatalf("id = %q", out.ID)
	}
}

func TestStatusErrorsCarryMarkers(t *testing.T) {
	cases := []struct {
		code   int
		marker error
	}{
		{http.StatusBadRequest, services.ErrValidation},
		{http.StatusForbidden, services.ErrAuthorization},
		{http.StatusTooManyRequests, services.ErrRateLimit},
		{http.StatusBadGateway, services.ErrTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			http.Error(w, "nope", tc.code)
		}))
		client := httpapi.New("demo", srv.URL, time.Second, nil)
		err := client.JSON(context.Background(), http.MethodGet, "/", nil, nil)
		srv.Close()

		if !errors.Is(err, tc.marker) {
			t.Fatalf("code %d: expected %v, got %v", tc.code, tc.marker, err)
		}
		var statusErr *httpapi.StatusError
		if !errors.As(err, &statusErr) || statusErr.RetryAfter != 3*time.Second {
			t.Fatalf("code %d: expected StatusError with Retry-After, got %#v", tc.code, err)
		}
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := httpapi.New("demo", url, time.Second, nil)
	err := client.JSON(context.Background(), http.MethodGet, "/", nil, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestCancelledContextIsReturnedUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := httpapi.New("demo", srv.URL, time.Second, nil)
	if err := client.JSON(ctx, http.MethodGet, "/", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := httpapi.ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("got %v %v", d, ok)
	}
	if _, ok := httpapi.ParseRetryAfter("soon"); ok {
		t.Fatal("expected parse failure")
	}
}
