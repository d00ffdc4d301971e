package preflight

import (
	"context"
	"time"

	"podforge/internal/config"
)

// probeTimeout bounds each collaborator check.
const probeTimeout = 10 * time.Second

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Probe is a named reachability check for one collaborator.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// RunAll checks the configured directories, then every probe.
func RunAll(ctx context.Context, cfg *config.Config, probes ...Probe) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Assets.Backend == config.AssetsBackendLocal {
		results = append(results, CheckDirectoryAccess("Assets directory", cfg.Paths.AssetsDir))
	}
	for _, probe := range probes {
		results = append(results, CheckService(ctx, probe))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
