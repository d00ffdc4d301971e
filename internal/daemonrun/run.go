package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"podforge/internal/collaborators"
	"podforge/internal/config"
	"podforge/internal/daemon"
	"podforge/internal/engine"
	"podforge/internal/events"
	"podforge/internal/logging"
	"podforge/internal/notifications"
	"podforge/internal/pipeline"
	"podforge/internal/preflight"
	"podforge/internal/statestore"
)

// PIDFileName is written under the state directory while the daemon runs.
const PIDFileName = "podforge.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
}

// Run starts the podforge daemon and blocks until SIGINT, SIGTERM, or
// cmdCtx cancellation, then shuts down gracefully.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays,
		filepath.Join(cfg.Paths.LogDir, logging.LogFileName))

	pidPath := filepath.Join(cfg.Paths.StateDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := statestore.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open state store", logging.Error(err),
			logging.String(logging.FieldEventType, "state_store_failed"),
			logging.String(logging.FieldErrorHint, "check the [state] backend settings"),
		)
		return err
	}

	set, err := collaborators.Build(signalCtx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build collaborators: %w", err)
	}
	logPreflight(signalCtx, logger, cfg, set.Probes())

	bus := events.NewBus(logger)
	bus.Subscribe("log", events.NewLogSubscriber(logger))
	bus.Subscribe("ntfy", notifications.New(cfg))

	eng, err := engine.New(engine.Options{
		Config: cfg,
		Logger: logger,
		Runner: pipeline.New(set.PipelineOptions(cfg, logger)),
		Store:  store,
		Bus:    bus,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create engine: %w", err)
	}

	d, err := daemon.New(cfg, eng, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance or check api.bind"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("podforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logPreflight records reachability results. Failures are warnings: jobs
// touching an unreachable collaborator fail and retry on their own.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, probes []preflight.Probe) {
	results := preflight.RunAll(ctx, cfg, probes...)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "jobs using this collaborator will fail until it is reachable"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the PID recorded by a running daemon, or 0 when the file
// is absent or unreadable.
func ReadPID(cfg *config.Config) int {
	if cfg == nil {
		return 0
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, PIDFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
