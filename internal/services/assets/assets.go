// Package assets stores generated images and returns URLs publish targets
// can fetch. The local backend writes under paths.assets_dir and relies on
// the API server's /assets route; the s3 backend targets any S3-compatible
// bucket (AWS, R2, MinIO).
package assets

import (
	"context"
	"fmt"
	"strings"

	"podforge/internal/config"
	"podforge/internal/services"
)

// Store persists image bytes under a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Ping(ctx context.Context) error
}

// New builds the backend selected in cfg.Assets.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Assets.Backend {
	case "", config.AssetsBackendLocal:
		base := cfg.Assets.PublicURL
		if base == "" {
			base = "http://" + cfg.API.Bind + "/assets"
		}
		return NewLocal(cfg.Paths.AssetsDir, base)
	case config.AssetsBackendS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.Assets.Bucket,
			Region:          cfg.Assets.Region,
			Endpoint:        cfg.Assets.Endpoint,
			AccessKeyID:     cfg.Assets.AccessKeyID,
			SecretAccessKey: cfg.Assets.SecretAccessKey,
			PublicURL:       cfg.Assets.PublicURL,
			Prefix:          cfg.Assets.Prefix,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "assets", fmt.Sprintf("unknown backend %q", cfg.Assets.Backend), nil)
	}
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "", "assets", "empty key", nil)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", services.Wrap(services.ErrValidation, "", "assets", fmt.Sprintf("invalid key %q", key), nil)
		}
	}
	return key, nil
}
