package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"curvrank/internal/artifact"
	"curvrank/internal/dataset"
	"curvrank/internal/logging"
	"curvrank/internal/pipeline"
	"curvrank/internal/services"
)

// splitsKey names the split set in the fingerprint table.
const splitsKey = "splits"

// SplitDir is where the database/query splits of this configuration live.
func (w *Workflow) SplitDir() string {
	return filepath.Join(w.cfg.ResultsDir(), splitsKey, w.fps[splitsKey])
}

// Splits returns the database/query splits, loading persisted ones or
// separating the catalog's encounters on first use. Only images with an
// extracted trailing edge take part. Splits are frozen once written.
func (w *Workflow) Splits() ([]dataset.Split, error) {
	return w.splitsOnce()
}

func (w *Workflow) computeSplits() ([]dataset.Split, error) {
	splits, ok, err := w.LoadSplits()
	if err != nil || ok {
		return splits, err
	}
	encounters := w.catalog.Encounters()
	splits = make([]dataset.Split, w.cfg.Evaluation.Runs)
	for run := range splits {
		split := dataset.Separate(encounters, dataset.SplitOptions{
			NumDatabase: w.cfg.Evaluation.NumDBEncounters,
			Seed:        w.cfg.Evaluation.Seed,
			Run:         run,
		}, w.edgeAvailable)
		if len(split.Database) == 0 {
			return nil, services.Wrap(services.ErrNoReferenceData, splitsKey, "separate",
				fmt.Sprintf("run %d: no catalogued image has a trailing edge", run), nil)
		}
		if err := dataset.WriteSplit(dataset.SplitPath(w.SplitDir(), run), split); err != nil {
			return nil, fmt.Errorf("persist split %d: %w", run, err)
		}
		w.logger.Info("split created",
			logging.Int("run", run),
			logging.Int("identities", len(split.Identities())),
			logging.Int("database_encounters", len(split.Database)),
			logging.Int("query_encounters", len(split.Queries)),
			logging.String("path", dataset.SplitPath(w.SplitDir(), run)),
		)
		splits[run] = split
	}
	return splits, nil
}

// LoadSplits reads persisted splits. ok is false when any run's split has
// not been written yet.
func (w *Workflow) LoadSplits() ([]dataset.Split, bool, error) {
	splits := make([]dataset.Split, w.cfg.Evaluation.Runs)
	for run := range splits {
		split, err := dataset.LoadSplit(dataset.SplitPath(w.SplitDir(), run))
		if errors.Is(err, services.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		splits[run] = split
	}
	return splits, true, nil
}

func (w *Workflow) edgeAvailable(item string) bool {
	return w.store.Exists(artifact.Key{
		Stage:       StageTrailingEdge,
		Fingerprint: w.fps[StageTrailingEdge],
		Item:        item,
		Sub:         pipeline.DefaultSubKey,
	})
}

func runLabel(run int) string { return fmt.Sprintf("%02d", run) }

// QueryItem is the identification item id of one query encounter, given
// its Key.
func QueryItem(run int, encounter string) string {
	return artifact.ItemKey(runLabel(run), encounter)
}

// QueryItems lists one identification item per query encounter per run.
func (w *Workflow) QueryItems(context.Context) ([]string, error) {
	splits, err := w.Splits()
	if err != nil {
		return nil, err
	}
	return queryItems(splits), nil
}

func queryItems(splits []dataset.Split) []string {
	var items []string
	for run, split := range splits {
		for _, q := range split.Queries {
			items = append(items, QueryItem(run, q.Key()))
		}
	}
	return items
}

func (w *Workflow) lookupQuery(_ context.Context, item string) (dataset.Split, dataset.Encounter, error) {
	label, id, ok := strings.Cut(item, ":")
	run, err := strconv.Atoi(label)
	if !ok || err != nil {
		return dataset.Split{}, dataset.Encounter{}, services.Wrap(services.ErrNotFound, "identify", "lookup query", "malformed item "+item, nil)
	}
	splits, err := w.Splits()
	if err != nil {
		return dataset.Split{}, dataset.Encounter{}, err
	}
	if run < 0 || run >= len(splits) {
		return dataset.Split{}, dataset.Encounter{}, services.Wrap(services.ErrNotFound, "identify", "lookup query", "no split for "+item, nil)
	}
	query, found := splits[run].Query(id)
	if !found {
		return dataset.Split{}, dataset.Encounter{}, services.Wrap(services.ErrNotFound, "identify", "lookup query", "no query encounter "+item, nil)
	}
	return splits[run], query, nil
}
