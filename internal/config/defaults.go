package config

const (
	defaultConfigPath             = "~/.config/podforge/config.toml"
	defaultStateDir               = "~/.local/share/podforge/state"
	defaultLogDir                 = "~/.local/share/podforge/logs"
	defaultAssetsDir              = "~/.local/share/podforge/assets"
	defaultAPIBind                = "127.0.0.1:7640"
	defaultMaxConcurrentJobs      = 2
	defaultJobTimeoutSeconds      = 600
	defaultAutoSaveSeconds        = 30
	defaultMetricsSeconds         = 10
	defaultDispatchMillis         = 1000
	defaultMaxRetries             = 3
	defaultShutdownTimeoutSeconds = 30
	defaultRetryInitialMillis     = 1000
	defaultRetryMaxMillis         = 60000
	defaultRetryMultiplier        = 2.0
	defaultImagesPerJob           = 1
	defaultGenerationBaseURL      = "https://api.runpod.ai/v2"
	defaultGenerationWidth        = 1024
	defaultGenerationHeight       = 1024
	defaultGenerationSteps        = 30
	defaultGenerationPollMillis   = 2000
	defaultGenerationTimeout      = 300
	defaultPromptLLMBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultPromptLLMModel         = "google/gemini-2.5-flash"
	defaultPromptLLMReferer       = "https://github.com/podforge/podforge"
	defaultPromptLLMTitle         = "podforge prompt writer"
	defaultPromptLLMTimeout       = 60
	defaultPostProcessTimeout     = 120
	defaultPrintifyBaseURL        = "https://api.printify.com/v1"
	defaultShopifyAPIVersion      = "2024-01"
	defaultPublishTimeout         = 60
	defaultRedisKey               = "podforge:snapshot"
	defaultMetricsWindow          = 50
	defaultFailureRateThreshold   = 0.5
	defaultMetricsMinSamples      = 5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// State backends.
const (
	StateBackendFile     = "file"
	StateBackendSQLite   = "sqlite"
	StateBackendPostgres = "postgres"
	StateBackendRedis    = "redis"
)

// Asset storage backends.
const (
	AssetsBackendLocal = "local"
	AssetsBackendS3    = "s3"
)

// Publish platform identifiers.
const (
	PlatformPrintify = "printify"
	PlatformShopify  = "shopify"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			AssetsDir: defaultAssetsDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Engine: Engine{
			MaxConcurrentJobs:       defaultMaxConcurrentJobs,
			JobTimeoutSeconds:       defaultJobTimeoutSeconds,
			AutoSaveIntervalSeconds: defaultAutoSaveSeconds,
			MetricsIntervalSeconds:  defaultMetricsSeconds,
			DispatchIntervalMillis:  defaultDispatchMillis,
			MaxRetries:              defaultMaxRetries,
			ShutdownTimeoutSeconds:  defaultShutdownTimeoutSeconds,
		},
		Retry: Retry{
			InitialDelayMillis: defaultRetryInitialMillis,
			MaxDelayMillis:     defaultRetryMaxMillis,
			Multiplier:         defaultRetryMultiplier,
			Jitter:             true,
		},
		Pipeline: Pipeline{
			ImagesPerJob:        defaultImagesPerJob,
			DefaultProductTypes: []string{"tshirt"},
			DefaultPlatforms:    []string{PlatformPrintify},
		},
		Generation: Generation{
			BaseURL:            defaultGenerationBaseURL,
			Width:              defaultGenerationWidth,
			Height:             defaultGenerationHeight,
			Steps:              defaultGenerationSteps,
			PollIntervalMillis: defaultGenerationPollMillis,
			TimeoutSeconds:     defaultGenerationTimeout,
		},
		PromptLLM: PromptLLM{
			BaseURL:        defaultPromptLLMBaseURL,
			Model:          defaultPromptLLMModel,
			Referer:        defaultPromptLLMReferer,
			Title:          defaultPromptLLMTitle,
			TimeoutSeconds: defaultPromptLLMTimeout,
		},
		PostProcess: PostProcess{
			RemoveBackground: true,
			Mockups:          true,
			TimeoutSeconds:   defaultPostProcessTimeout,
		},
		Printify: Printify{
			BaseURL:        defaultPrintifyBaseURL,
			TimeoutSeconds: defaultPublishTimeout,
		},
		Shopify: Shopify{
			APIVersion:     defaultShopifyAPIVersion,
			TimeoutSeconds: defaultPublishTimeout,
		},
		Assets: Assets{
			Backend: AssetsBackendLocal,
			Region:  "auto",
		},
		State: State{
			Backend:  StateBackendFile,
			RedisKey: defaultRedisKey,
		},
		Metrics: Metrics{
			Window:               defaultMetricsWindow,
			FailureRateThreshold: defaultFailureRateThreshold,
			MinSamples:           defaultMetricsMinSamples,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			JobCompleted:   true,
			JobFailed:      true,
			JobRetry:       false,
			Engine:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
