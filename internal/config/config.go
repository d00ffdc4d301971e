package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	AssetsDir string `toml:"assets_dir"`
}

// API contains HTTP server settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Engine contains scheduler sizing and timer settings.
type Engine struct {
	MaxConcurrentJobs       int `toml:"max_concurrent_jobs"`
	JobTimeoutSeconds       int `toml:"job_timeout_seconds"`
	AutoSaveIntervalSeconds int `toml:"auto_save_interval_seconds"`
	MetricsIntervalSeconds  int `toml:"metrics_interval_seconds"`
	DispatchIntervalMillis  int `toml:"dispatch_interval_ms"`
	MaxRetries              int `toml:"max_retries"`
	ShutdownTimeoutSeconds  int `toml:"shutdown_timeout_seconds"`
}

// Retry contains backoff settings for requeued jobs.
type Retry struct {
	InitialDelayMillis int     `toml:"initial_delay_ms"`
	MaxDelayMillis     int     `toml:"max_delay_ms"`
	Multiplier         float64 `toml:"multiplier"`
	Jitter             bool    `toml:"jitter"`
}

// Pipeline contains stage behaviour defaults.
type Pipeline struct {
	ImagesPerJob        int      `toml:"images_per_job"`
	PostProcessing      bool     `toml:"post_processing"`
	DefaultProductTypes []string `toml:"default_product_types"`
	DefaultPlatforms    []string `toml:"default_platforms"`
}

// Generation contains the image generation service settings.
type Generation struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	EndpointID         string `toml:"endpoint_id"`
	Width              int    `toml:"width"`
	Height             int    `toml:"height"`
	Steps              int    `toml:"steps"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// PromptLLM contains settings for LLM-backed prompt synthesis. When disabled,
// prompts are synthesized from templates.
type PromptLLM struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PostProcess contains the background removal / mockup service settings.
type PostProcess struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	RemoveBackground bool   `toml:"remove_background"`
	Mockups          bool   `toml:"mockups"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Printify contains Printify publish target settings.
type Printify struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	ShopID         string `toml:"shop_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Shopify contains Shopify publish target settings.
type Shopify struct {
	Enabled        bool   `toml:"enabled"`
	StoreURL       string `toml:"store_url"`
	AccessToken    string `toml:"access_token"`
	APIVersion     string `toml:"api_version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Assets contains generated image storage settings.
type Assets struct {
	Backend         string `toml:"backend"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PublicURL       string `toml:"public_url"`
	Prefix          string `toml:"prefix"`
}

// State contains snapshot persistence settings.
type State struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	DSN           string `toml:"dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisKey      string `toml:"redis_key"`
}

// Metrics contains health predicate settings.
type Metrics struct {
	Window               int     `toml:"window"`
	FailureRateThreshold float64 `toml:"failure_rate_threshold"`
	MinSamples           int     `toml:"min_samples"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	JobRetry       bool   `toml:"job_retry"`
	Engine         bool   `toml:"engine"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for podforge.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and asset directories
//   - API: HTTP bind address and bearer token
//   - Engine: concurrency, timeouts, and timer intervals
//   - Retry: backoff for requeued jobs
//   - Pipeline: images per job, post-processing toggle, defaults
//   - Generation, PromptLLM, PostProcess: collaborator services
//   - Printify, Shopify: publish targets
//   - Assets: local or S3-compatible image storage
//   - State: snapshot backend (file, sqlite, postgres, redis)
//   - Metrics: failure-rate health predicate
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Engine        Engine        `toml:"engine"`
	Retry         Retry         `toml:"retry"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Generation    Generation    `toml:"generation"`
	PromptLLM     PromptLLM     `toml:"prompt_llm"`
	PostProcess   PostProcess   `toml:"postprocess"`
	Printify      Printify      `toml:"printify"`
	Shopify       Shopify       `toml:"shopify"`
	Assets        Assets        `toml:"assets"`
	State         State         `toml:"state"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if value, ok := os.LookupEnv("PODFORGE_CONFIG"); ok && strings.TrimSpace(value) != "" {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadDotEnv reads .env files beside the config file and in the working
// directory. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(abs)
	}
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Assets.Backend == AssetsBackendLocal {
		if err := os.MkdirAll(c.Paths.AssetsDir, 0o755); err != nil {
			return fmt.Errorf("create assets directory %q: %w", c.Paths.AssetsDir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "podforge.lock")
}

// JobTimeout returns the per-job watchdog duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Engine.JobTimeoutSeconds) * time.Second
}

// AutoSaveInterval returns the snapshot cadence.
func (c *Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.Engine.AutoSaveIntervalSeconds) * time.Second
}

// MetricsInterval returns the metrics recompute cadence.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Engine.MetricsIntervalSeconds) * time.Second
}

// DispatchInterval returns the dispatch loop timer tick.
func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.Engine.DispatchIntervalMillis) * time.Millisecond
}

// ShutdownTimeout bounds how long Stop waits for running workers.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Engine.ShutdownTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
