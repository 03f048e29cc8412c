package preflight

import (
	"context"
	"os"

	"dubsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// WorkDir returns the scratch directory a run will use.
func WorkDir(cfg *config.Config) string {
	if cfg != nil && cfg.Paths.WorkDir != "" {
		return cfg.Paths.WorkDir
	}
	return os.TempDir()
}

// RunAll executes the filesystem checks for the given config. Binary
// availability is reported separately by CheckSystemDeps.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	workDir := WorkDir(cfg)
	results := []Result{
		CheckDirectoryAccess("Work directory", workDir),
		CheckFreeSpace("Work directory space", workDir, minWorkSpaceBytes),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
