package preflight

import (
	"errors"
	"fmt"
	"strings"

	"curvrank/internal/config"
	"curvrank/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check applicable to the given config. The
// workspace is created first so a fresh install passes.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Workspace", Detail: err.Error()})
		return results
	}
	results = append(results,
		CheckDirectoryAccess("Workspace", cfg.Paths.WorkspaceDir),
		CheckFreeSpace("Workspace free space", cfg.Paths.WorkspaceDir, cfg.Artifacts.MinFreeMiB),
		CheckReadableFile("Catalog", cfg.Paths.CatalogPath),
		CheckReadableDirectory("Outline directory", cfg.Paths.OutlineDir),
	)
	if strings.TrimSpace(cfg.Paths.MaskDir) != "" {
		results = append(results, CheckReadableDirectory("Mask directory", cfg.Paths.MaskDir))
	}
	return results
}

// Err joins failed checks into one configuration error, or returns nil.
func Err(results []Result) error {
	var failed []error
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", fmt.Sprintf("%d check(s) failed", len(failed)), errors.Join(failed...))
}
