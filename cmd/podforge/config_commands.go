package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"podforge/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the podforge configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand(ctx), newConfigValidateCommand(ctx))
	return configCmd
}

// initTarget picks the file config init writes: --path, then the global
// --config flag, then the default location.
func initTarget(pathFlag, configFlag string) (string, error) {
	for _, candidate := range []string{pathFlag, configFlag} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return config.ExpandPath(candidate)
		}
	}
	return config.DefaultConfigPath()
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, ctx.configPath())
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set generation.api_key and generation.endpoint_id (or export RUNPOD_API_KEY and RUNPOD_ENDPOINT_ID) before running podforge.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

type configSummary struct {
	Path         string   `json:"path"`
	Exists       bool     `json:"exists"`
	StateBackend string   `json:"stateBackend"`
	AssetBackend string   `json:"assetBackend"`
	Platforms    []string `json:"platforms"`
	Bind         string   `json:"bind"`
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load, validate, and summarize the configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			summary := configSummary{
				Path:         path,
				Exists:       exists,
				StateBackend: cfg.State.Backend,
				AssetBackend: cfg.Assets.Backend,
				Platforms:    cfg.EnabledPlatforms(),
				Bind:         cfg.API.Bind,
			}
			return emit(cmd, ctx, summary, func() error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Config path: %s\n", summary.Path)
				if !summary.Exists {
					fmt.Fprintln(out, "Config file did not exist; defaults were used")
				}
				fmt.Fprintf(out, "API bind: %s\n", summary.Bind)
				fmt.Fprintf(out, "State backend: %s\n", summary.StateBackend)
				fmt.Fprintf(out, "Asset backend: %s\n", summary.AssetBackend)
				platforms := "none enabled"
				if len(summary.Platforms) > 0 {
					platforms = strings.Join(summary.Platforms, ", ")
				}
				fmt.Fprintf(out, "Publish platforms: %s\n", platforms)
				fmt.Fprintln(out, "Configuration valid")
				return nil
			})
		},
	}
}
