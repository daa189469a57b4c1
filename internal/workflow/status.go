package workflow

import (
	"context"
	"errors"

	"github.com/gofrs/flock"

	"curvrank/internal/artifact"
	"curvrank/internal/config"
	"curvrank/internal/dataset"
	"curvrank/internal/ledger"
	"curvrank/internal/pipeline"
	"curvrank/internal/preflight"
	"curvrank/internal/services"
)

// StageProgress is the on-disk completeness of one stage.
type StageProgress struct {
	Stage    string
	Device   string
	Items    int
	Complete int
	Failed   int
	Pending  int
}

// Status is a read-only snapshot of the workspace.
type Status struct {
	// Busy is set when another process holds the workspace lock.
	Busy      bool
	LatestRun *ledger.Run
	Stages    []ledger.StageCount
	Progress  []StageProgress
	Preflight []preflight.Result
}

// Progress tallies every stage's items from the artifact store without
// computing anything. Identification stages report no items until splits
// have been written.
func (w *Workflow) Progress(ctx context.Context) ([]StageProgress, error) {
	graph, err := w.Graph()
	if err != nil {
		return nil, err
	}
	stages, err := graph.Resolve()
	if err != nil {
		return nil, err
	}
	splits, haveSplits, err := w.LoadSplits()
	if err != nil {
		return nil, err
	}
	checker := pipeline.NewScheduler(w.store, pipeline.Options{})
	out := make([]StageProgress, 0, len(stages))
	for _, st := range stages {
		items := w.catalog.Items()
		if st.Items != nil {
			items = nil
			if haveSplits {
				items = queryItems(splits)
			}
		}
		p := StageProgress{Stage: st.Name, Device: st.Device.String(), Items: len(items)}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			state := checker.Check(st, item)
			switch {
			case state.Failed:
				p.Failed++
			case state.Complete:
				p.Complete++
			default:
				p.Pending++
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Inspect gathers the workspace status without taking the workspace lock
// and without writing artifacts.
func Inspect(ctx context.Context, cfg *config.Config) (*Status, error) {
	status := &Status{Preflight: preflight.RunAll(cfg)}

	probe := flock.New(cfg.LockPath())
	locked, err := probe.TryRLock()
	if err == nil {
		status.Busy = !locked
		if locked {
			_ = probe.Unlock()
		}
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	run, err := store.Latest(ctx)
	switch {
	case err == nil:
		status.LatestRun = &run
		if status.Stages, err = store.Stages(ctx, run.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, services.ErrNotFound):
		return nil, err
	}

	catalog, err := dataset.LoadCatalog(cfg.Paths.CatalogPath)
	if err != nil {
		// Without a catalog there is no item universe to inspect.
		return status, nil
	}
	compression, err := artifact.ParseCompression(cfg.Artifacts.Compression)
	if err != nil {
		return nil, err
	}
	artifacts, err := artifact.Open(cfg.ArtifactDir(), compression)
	if err != nil {
		return nil, err
	}
	w, err := New(cfg, artifacts, catalog, nil)
	if err != nil {
		return status, nil
	}
	status.Progress, err = w.Progress(ctx)
	if err != nil {
		return nil, err
	}
	return status, nil
}
