package testsupport

import (
	"path/filepath"
	"testing"

	"podforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timers are shortened so engine tests settle quickly, retries are disabled
// and no collaborator is enabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AssetsDir = filepath.Join(base, "assets")
	cfgVal.State.Path = filepath.Join(base, "state", "queue_state.json")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Engine.MaxConcurrentJobs = 1
	cfgVal.Engine.MaxRetries = 0
	cfgVal.Engine.DispatchIntervalMillis = 20
	cfgVal.Engine.AutoSaveIntervalSeconds = 0
	cfgVal.Engine.MetricsIntervalSeconds = 1
	cfgVal.Engine.ShutdownTimeoutSeconds = 1
	cfgVal.Retry.InitialDelayMillis = 10
	cfgVal.Retry.MaxDelayMillis = 50
	cfgVal.Retry.Jitter = false
	cfgVal.Pipeline.DefaultPlatforms = nil
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithConcurrency sets engine.max_concurrent_jobs.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.MaxConcurrentJobs = n
	}
}

// WithMaxRetries sets engine.max_retries.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.MaxRetries = n
	}
}

// WithStateBackend switches the snapshot backend, placing its file under the
// test's state directory.
func WithStateBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.State.Backend = backend
		name := "queue_state.json"
		if backend == config.StateBackendSQLite {
			name = "queue_state.db"
		}
		b.cfg.State.Path = filepath.Join(b.baseDir, "state", name)
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
