package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validatePromptLLM(); err != nil {
		return err
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	if err := c.validateAssets(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.max_concurrent_jobs":        c.Engine.MaxConcurrentJobs,
		"engine.job_timeout_seconds":        c.Engine.JobTimeoutSeconds,
		"engine.auto_save_interval_seconds": c.Engine.AutoSaveIntervalSeconds,
		"engine.metrics_interval_seconds":   c.Engine.MetricsIntervalSeconds,
		"engine.dispatch_interval_ms":       c.Engine.DispatchIntervalMillis,
		"engine.shutdown_timeout_seconds":   c.Engine.ShutdownTimeoutSeconds,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Engine.MaxRetries < 0 {
		return errors.New("engine.max_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.InitialDelayMillis <= 0 {
		return errors.New("retry.initial_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMillis < c.Retry.InitialDelayMillis {
		return errors.New("retry.max_delay_ms must be >= retry.initial_delay_ms")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ImagesPerJob <= 0 {
		return errors.New("pipeline.images_per_job must be positive")
	}
	if len(c.Pipeline.DefaultProductTypes) == 0 {
		return errors.New("pipeline.default_product_types must include at least one product type")
	}
	for _, platform := range c.Pipeline.DefaultPlatforms {
		if !IsKnownPlatform(platform) {
			return fmt.Errorf("pipeline.default_platforms: unknown platform %q", platform)
		}
	}
	if c.Pipeline.PostProcessing && c.PostProcess.BaseURL == "" {
		return errors.New("postprocess.base_url must be set when pipeline.post_processing is true")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.APIKey == "" || c.Generation.EndpointID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("generation.api_key and generation.endpoint_id are required. Set RUNPOD_API_KEY and RUNPOD_ENDPOINT_ID env vars or edit %s (create with 'podforge config init')", defaultPath)
	}
	if err := ensurePositiveMap(map[string]int{
		"generation.width":           c.Generation.Width,
		"generation.height":          c.Generation.Height,
		"generation.steps":           c.Generation.Steps,
		"generation.timeout_seconds": c.Generation.TimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePromptLLM() error {
	if c.PromptLLM.Enabled && c.PromptLLM.APIKey == "" {
		return errors.New("prompt_llm.api_key must be set when prompt_llm.enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	if c.Printify.Enabled {
		if c.Printify.APIToken == "" {
			return errors.New("printify.api_token must be set when printify.enabled is true (or set PRINTIFY_API_TOKEN)")
		}
		if c.Printify.ShopID == "" {
			return errors.New("printify.shop_id must be set when printify.enabled is true")
		}
	}
	if c.Shopify.Enabled {
		if c.Shopify.StoreURL == "" {
			return errors.New("shopify.store_url must be set when shopify.enabled is true")
		}
		if c.Shopify.AccessToken == "" {
			return errors.New("shopify.access_token must be set when shopify.enabled is true (or set SHOPIFY_ACCESS_TOKEN)")
		}
	}
	return nil
}

func (c *Config) validateAssets() error {
	switch c.Assets.Backend {
	case AssetsBackendLocal:
		return nil
	case AssetsBackendS3:
		if c.Assets.Bucket == "" {
			return errors.New("assets.bucket must be set when assets.backend is s3")
		}
		return nil
	default:
		return fmt.Errorf("assets.backend: unsupported value %q", c.Assets.Backend)
	}
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case StateBackendFile, StateBackendSQLite:
		if strings.TrimSpace(c.State.Path) == "" {
			return errors.New("state.path must be set")
		}
	case StateBackendPostgres:
		if c.State.DSN == "" {
			return errors.New("state.dsn must be set when state.backend is postgres (or set DATABASE_URL)")
		}
	case StateBackendRedis:
		if c.State.RedisAddr == "" {
			return errors.New("state.redis_addr must be set when state.backend is redis")
		}
	default:
		return fmt.Errorf("state.backend: unsupported value %q", c.State.Backend)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Window <= 0 {
		return errors.New("metrics.window must be positive")
	}
	if c.Metrics.FailureRateThreshold <= 0 || c.Metrics.FailureRateThreshold > 1 {
		return errors.New("metrics.failure_rate_threshold must be between 0 and 1")
	}
	if c.Metrics.MinSamples < 0 {
		return errors.New("metrics.min_samples must be >= 0")
	}
	return nil
}

// IsKnownPlatform reports whether a publish platform identifier is supported.
func IsKnownPlatform(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PlatformPrintify, PlatformShopify:
		return true
	default:
		return false
	}
}

// EnabledPlatforms lists the publish targets that are configured and enabled.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.Printify.Enabled {
		out = append(out, PlatformPrintify)
	}
	if c.Shopify.Enabled {
		out = append(out, PlatformShopify)
	}
	return out
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
