// Package daemonctl starts, stops, and probes a podforge daemon from the CLI.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/daemonrun"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Address  string
}

// Launch starts a detached daemon process running "<executable> serve".
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Reachable reports whether the API answers /health at all. An unhealthy
// daemon is still reachable.
func Reachable(ctx context.Context, client *api.Client) bool {
	_, err := client.Health(ctx)
	return err == nil
}

// WaitForClient polls /health until the daemon answers or timeout elapses.
func WaitForClient(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		_, err := client.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless it is already reachable.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if Reachable(ctx, client) {
		return StartResult{State: StartStateAlreadyRunning, Address: client.BaseURL()}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForClient(ctx, client, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true, Address: client.BaseURL()}, nil
}

// Stop sends SIGTERM to the daemon recorded in the pid file and waits for
// the API to go away. It returns false when no daemon was running.
func Stop(ctx context.Context, cfg *config.Config, client *api.Client, timeout time.Duration) (bool, error) {
	pid := daemonrun.ReadPID(cfg)
	if pid <= 0 {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return false, nil
		}
		return false, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	return true, WaitForShutdown(ctx, client, timeout)
}

// WaitForShutdown waits for the API to stop answering.
func WaitForShutdown(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !Reachable(ctx, client) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return errors.New("daemon did not stop: still answering /health")
}

// ProcessInfo returns whether the daemon API is reachable and the PID from
// its pid file when available.
func ProcessInfo(ctx context.Context, cfg *config.Config, client *api.Client) (bool, int) {
	return Reachable(ctx, client), daemonrun.ReadPID(cfg)
}
