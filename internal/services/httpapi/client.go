// Package httpapi is the shared JSON-over-HTTP plumbing for collaborator
// clients. Responses are classified with the services markers so retry
// decisions work the same for every collaborator.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"podforge/internal/services"
)

const (
	userAgent      = "podforge/0.1.0"
	maxBodySnippet = 300
	maxBodyBytes   = 64 << 20
)

// StatusError is a non-2xx response. It unwraps to the marker for its code.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.StatusCode, body)
}

// Unwrap exposes the classification marker.
func (e *StatusError) Unwrap() error {
	return services.MarkerForStatus(e.StatusCode)
}

// Client sends requests to one collaborator.
type Client struct {
	Service string
	BaseURL string
	HTTP    *http.Client
	// Authorize sets credentials on every request.
	Authorize func(*http.Request)
}

// New returns a client with the given timeout.
func New(service, baseURL string, timeout time.Duration, authorize func(*http.Request)) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Service:   service,
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:      &http.Client{Timeout: timeout},
		Authorize: authorize,
	}
}

// Bearer returns an Authorize func that sets a bearer token.
func Bearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// URL joins path onto the base URL. Absolute URLs are returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// JSON sends in (when non-nil) as a JSON body and decodes the response into
// out (when non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.Service, err)
		}
		body = bytes.NewReader(encoded)
	}
	data, _, err := c.Do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrTransient, "", c.Service, "decode response", err)
	}
	return nil
}

// Do sends a request and returns the body and content type of a 2xx
// response. Transport failures are marked transient (or timeout); context
// errors are returned unchanged.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, "", services.Wrap(services.ErrConfiguration, "", c.Service, "build request", err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.Authorize != nil {
		c.Authorize(req)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		marker := services.ErrTransient
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			marker = services.ErrTimeout
		}
		return nil, "", services.Wrap(marker, "", c.Service, method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "", services.Wrap(services.ErrTransient, "", c.Service, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", &StatusError{
			Service:    c.Service,
			StatusCode: resp.StatusCode,
			Body:       string(data),
			RetryAfter: retryAfter,
		}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ParseRetryAfter understands both delta-seconds and HTTP-date values.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
