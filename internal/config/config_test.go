package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"podforge/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RUNPOD_API_KEY", "rp-key")
	t.Setenv("RUNPOD_ENDPOINT_ID", "endpoint-1")
}

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	setRequiredEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PODFORGE_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "podforge", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.State.Backend != config.StateBackendFile {
		t.Fatalf("expected file backend by default, got %q", cfg.State.Backend)
	}
	if cfg.State.Path != filepath.Join(wantState, "queue_state.json") {
		t.Fatalf("unexpected state path: %q", cfg.State.Path)
	}
	if cfg.API.Bind != "127.0.0.1:7640" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Generation.APIKey != "rp-key" || cfg.Generation.EndpointID != "endpoint-1" {
		t.Fatalf("expected generation credentials from env, got %+v", cfg.Generation)
	}
	if cfg.JobTimeout() != 600*time.Second {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout())
	}
	if cfg.Printify.Enabled || cfg.Shopify.Enabled {
		t.Fatal("expected publish targets disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.AssetsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	setRequiredEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "podforge.toml")

	type payload struct {
		Engine struct {
			MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
			JobTimeoutSeconds int `toml:"job_timeout_seconds"`
		} `toml:"engine"`
		Pipeline struct {
			DefaultPlatforms []string `toml:"default_platforms"`
		} `toml:"pipeline"`
		State struct {
			Backend string `toml:"backend"`
		} `toml:"state"`
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
	}
	custom := payload{}
	custom.Engine.MaxConcurrentJobs = 4
	custom.Engine.JobTimeoutSeconds = 90
	custom.Pipeline.DefaultPlatforms = []string{" Shopify ", "printify", "shopify"}
	custom.State.Backend = "SQLite"
	custom.Paths.StateDir = filepath.Join(tempDir, "state")

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Engine.MaxConcurrentJobs != 4 {
		t.Fatalf("unexpected max concurrent jobs: %d", cfg.Engine.MaxConcurrentJobs)
	}
	if cfg.JobTimeout() != 90*time.Second {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout())
	}
	if got := strings.Join(cfg.Pipeline.DefaultPlatforms, ","); got != "shopify,printify" {
		t.Fatalf("expected normalized platform list, got %q", got)
	}
	if cfg.State.Backend != config.StateBackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.State.Backend)
	}
	if cfg.State.Path != filepath.Join(tempDir, "state", "queue_state.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.State.Path)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	t.Setenv("RUNPOD_API_KEY", "")
	os.Unsetenv("RUNPOD_API_KEY")
	t.Setenv("RUNPOD_ENDPOINT_ID", "endpoint-env")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "podforge.toml")
	if err := os.WriteFile(configPath, []byte("[engine]\nmax_concurrent_jobs = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("RUNPOD_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("RUNPOD_API_KEY") })

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generation.APIKey != "from-dotenv" {
		t.Fatalf("expected api key from .env, got %q", cfg.Generation.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Generation.APIKey = "k"
		cfg.Generation.EndpointID = "e"
		cfg.State.Path = "/tmp/state.json"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero concurrency", func(c *config.Config) { c.Engine.MaxConcurrentJobs = 0 }, "engine.max_concurrent_jobs"},
		{"negative retries", func(c *config.Config) { c.Engine.MaxRetries = -1 }, "engine.max_retries"},
		{"retry cap below initial", func(c *config.Config) { c.Retry.MaxDelayMillis = 10 }, "retry.max_delay_ms"},
		{"unknown platform", func(c *config.Config) { c.Pipeline.DefaultPlatforms = []string{"etsy"} }, "unknown platform"},
		{"missing generation", func(c *config.Config) { c.Generation.APIKey = "" }, "generation.api_key"},
		{"printify without token", func(c *config.Config) { c.Printify.Enabled = true; c.Printify.ShopID = "1" }, "printify.api_token"},
		{"shopify without store", func(c *config.Config) { c.Shopify.Enabled = true }, "shopify.store_url"},
		{"s3 without bucket", func(c *config.Config) { c.Assets.Backend = config.AssetsBackendS3 }, "assets.bucket"},
		{"postgres without dsn", func(c *config.Config) { c.State.Backend = config.StateBackendPostgres }, "state.dsn"},
		{"redis without addr", func(c *config.Config) { c.State.Backend = config.StateBackendRedis }, "state.redis_addr"},
		{"bad backend", func(c *config.Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"bad threshold", func(c *config.Config) { c.Metrics.FailureRateThreshold = 1.5 }, "metrics.failure_rate_threshold"},
		{"post-processing without service", func(c *config.Config) { c.Pipeline.PostProcessing = true }, "postprocess.base_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
}

func TestEnabledPlatforms(t *testing.T) {
	cfg := config.Default()
	if got := cfg.EnabledPlatforms(); len(got) != 0 {
		t.Fatalf("expected no platforms, got %v", got)
	}
	cfg.Printify.Enabled = true
	cfg.Shopify.Enabled = true
	if got := strings.Join(cfg.EnabledPlatforms(), ","); got != "printify,shopify" {
		t.Fatalf("unexpected platforms: %q", got)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Engine.MaxConcurrentJobs != 2 {
		t.Fatalf("unexpected sample concurrency: %d", cfg.Engine.MaxConcurrentJobs)
	}
}
