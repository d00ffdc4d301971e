package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"podforge/internal/collaborators"
	"podforge/internal/daemonctl"
	"podforge/internal/daemonrun"
	"podforge/internal/logging"
	"podforge/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var serveLogLevel string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the podforge daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: serveLogLevel})
		},
	}
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the podforge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: startLogLevel},
				15*time.Second,
			)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started on %s\n", result.Address)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running on %s\n", result.Address)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon (running jobs are requeued)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stopped, err := daemonctl.Stop(cmd.Context(), cfg, client, cfg.ShutdownTimeout()+10*time.Second)
			if err != nil {
				return err
			}
			if !stopped {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show preflight checks, daemon reachability, and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			set, err := collaborators.Build(cmd.Context(), cfg, logging.NewNop())
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, set.Probes()...)

			client, err := ctx.client()
			if err != nil {
				return err
			}
			reachable, pid := daemonctl.ProcessInfo(cmd.Context(), cfg, client)
			var byStatus map[string]int
			if reachable {
				if snap, err := client.Metrics(cmd.Context()); err == nil {
					byStatus = snap.ByStatus
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"daemon":    map[string]any{"reachable": reachable, "pid": pid, "address": client.BaseURL()},
					"preflight": results,
					"queue":     byStatus,
				})
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "Daemon", colorize)
			if reachable {
				detail := client.BaseURL()
				if pid > 0 {
					detail += " (pid " + strconv.Itoa(pid) + ")"
				}
				fmt.Fprintln(stdout, renderStatusLine("API", statusOK, detail, colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("API", statusWarn, "not reachable at "+client.BaseURL(), colorize))
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Preflight", colorize)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if len(byStatus) == 0 {
				return nil
			}
			fmt.Fprintln(stdout)
			printSection(stdout, "Queue", colorize)
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, buildStatusCountRows(byStatus), []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	return []*cobra.Command{serveCmd, startCmd, stopCmd, statusCmd}
}

func buildStatusCountRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(stats[key])})
	}
	return rows
}
