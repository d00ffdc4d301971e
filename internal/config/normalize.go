package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizePipeline()
	c.normalizeGeneration()
	c.normalizePromptLLM()
	c.normalizePostProcess()
	c.normalizePlatforms()
	c.normalizeAssets()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetsDir) == "" {
		c.Paths.AssetsDir = defaultAssetsDir
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return fmt.Errorf("paths.assets_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = envValue("PODFORGE_API_TOKEN")
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DefaultProductTypes = normalizeList(c.Pipeline.DefaultProductTypes)
	c.Pipeline.DefaultPlatforms = normalizeList(c.Pipeline.DefaultPlatforms)
}

func (c *Config) normalizeGeneration() {
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = envValue("RUNPOD_API_KEY")
	}
	c.Generation.EndpointID = strings.TrimSpace(c.Generation.EndpointID)
	if c.Generation.EndpointID == "" {
		c.Generation.EndpointID = envValue("RUNPOD_ENDPOINT_ID")
	}
	if c.Generation.PollIntervalMillis <= 0 {
		c.Generation.PollIntervalMillis = defaultGenerationPollMillis
	}
}

func (c *Config) normalizePromptLLM() {
	c.PromptLLM.BaseURL = strings.TrimSpace(c.PromptLLM.BaseURL)
	if c.PromptLLM.BaseURL == "" {
		c.PromptLLM.BaseURL = defaultPromptLLMBaseURL
	}
	c.PromptLLM.Model = strings.TrimSpace(c.PromptLLM.Model)
	if c.PromptLLM.Model == "" {
		c.PromptLLM.Model = defaultPromptLLMModel
	}
	c.PromptLLM.Referer = strings.TrimSpace(c.PromptLLM.Referer)
	if c.PromptLLM.Referer == "" {
		c.PromptLLM.Referer = defaultPromptLLMReferer
	}
	c.PromptLLM.Title = strings.TrimSpace(c.PromptLLM.Title)
	if c.PromptLLM.Title == "" {
		c.PromptLLM.Title = defaultPromptLLMTitle
	}
	if c.PromptLLM.TimeoutSeconds <= 0 {
		c.PromptLLM.TimeoutSeconds = defaultPromptLLMTimeout
	}
	c.PromptLLM.APIKey = strings.TrimSpace(c.PromptLLM.APIKey)
	if c.PromptLLM.APIKey == "" {
		c.PromptLLM.APIKey = envValue("OPENROUTER_API_KEY")
	}
}

func (c *Config) normalizePostProcess() {
	c.PostProcess.BaseURL = strings.TrimRight(strings.TrimSpace(c.PostProcess.BaseURL), "/")
	c.PostProcess.APIKey = strings.TrimSpace(c.PostProcess.APIKey)
	if c.PostProcess.APIKey == "" {
		c.PostProcess.APIKey = envValue("POSTPROCESS_API_KEY")
	}
	if c.PostProcess.TimeoutSeconds <= 0 {
		c.PostProcess.TimeoutSeconds = defaultPostProcessTimeout
	}
}

func (c *Config) normalizePlatforms() {
	c.Printify.BaseURL = strings.TrimRight(strings.TrimSpace(c.Printify.BaseURL), "/")
	if c.Printify.BaseURL == "" {
		c.Printify.BaseURL = defaultPrintifyBaseURL
	}
	c.Printify.APIToken = strings.TrimSpace(c.Printify.APIToken)
	if c.Printify.APIToken == "" {
		c.Printify.APIToken = envValue("PRINTIFY_API_TOKEN")
	}
	c.Printify.ShopID = strings.TrimSpace(c.Printify.ShopID)
	if c.Printify.ShopID == "" {
		c.Printify.ShopID = envValue("PRINTIFY_SHOP_ID")
	}
	if c.Printify.TimeoutSeconds <= 0 {
		c.Printify.TimeoutSeconds = defaultPublishTimeout
	}

	c.Shopify.StoreURL = strings.TrimRight(strings.TrimSpace(c.Shopify.StoreURL), "/")
	c.Shopify.AccessToken = strings.TrimSpace(c.Shopify.AccessToken)
	if c.Shopify.AccessToken == "" {
		c.Shopify.AccessToken = envValue("SHOPIFY_ACCESS_TOKEN")
	}
	c.Shopify.APIVersion = strings.TrimSpace(c.Shopify.APIVersion)
	if c.Shopify.APIVersion == "" {
		c.Shopify.APIVersion = defaultShopifyAPIVersion
	}
	if c.Shopify.TimeoutSeconds <= 0 {
		c.Shopify.TimeoutSeconds = defaultPublishTimeout
	}
}

func (c *Config) normalizeAssets() {
	c.Assets.Backend = strings.ToLower(strings.TrimSpace(c.Assets.Backend))
	if c.Assets.Backend == "" {
		c.Assets.Backend = AssetsBackendLocal
	}
	c.Assets.Bucket = strings.TrimSpace(c.Assets.Bucket)
	c.Assets.Endpoint = strings.TrimRight(strings.TrimSpace(c.Assets.Endpoint), "/")
	c.Assets.PublicURL = strings.TrimRight(strings.TrimSpace(c.Assets.PublicURL), "/")
	c.Assets.Prefix = strings.Trim(strings.TrimSpace(c.Assets.Prefix), "/")
	if c.Assets.AccessKeyID == "" {
		c.Assets.AccessKeyID = envValue("AWS_ACCESS_KEY_ID")
	}
	if c.Assets.SecretAccessKey == "" {
		c.Assets.SecretAccessKey = envValue("AWS_SECRET_ACCESS_KEY")
	}
	if strings.TrimSpace(c.Assets.Region) == "" {
		c.Assets.Region = "auto"
	}
}

func (c *Config) normalizeState() error {
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	if c.State.Backend == "" {
		c.State.Backend = StateBackendFile
	}
	if strings.TrimSpace(c.State.Path) == "" {
		switch c.State.Backend {
		case StateBackendSQLite:
			c.State.Path = filepath.Join(c.Paths.StateDir, "queue_state.db")
		default:
			c.State.Path = filepath.Join(c.Paths.StateDir, "queue_state.json")
		}
	}
	var err error
	if c.State.Path, err = expandPath(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	c.State.DSN = strings.TrimSpace(c.State.DSN)
	if c.State.DSN == "" {
		c.State.DSN = envValue("DATABASE_URL")
	}
	c.State.RedisAddr = strings.TrimSpace(c.State.RedisAddr)
	if c.State.RedisPassword == "" {
		c.State.RedisPassword = envValue("REDIS_PASSWORD")
	}
	c.State.RedisKey = strings.TrimSpace(c.State.RedisKey)
	if c.State.RedisKey == "" {
		c.State.RedisKey = defaultRedisKey
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.StageOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			stage = strings.ToLower(strings.TrimSpace(stage))
			level = strings.ToLower(strings.TrimSpace(level))
			if stage == "" || level == "" {
				continue
			}
			overrides[stage] = level
		}
		c.Logging.StageOverrides = overrides
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
