package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"curvrank/internal/artifact"
	"curvrank/internal/logging"
	"curvrank/internal/pipeline"
	"curvrank/internal/ranking"
	"curvrank/internal/services"
)

// loggedTopK are the accuracies summarised in the log after each split.
var loggedTopK = []int{1, 5, 10, 25}

// MethodReport is the evaluation of one identification method over every
// split.
type MethodReport struct {
	Method    string
	Dir       string
	Runs      []ranking.Evaluation
	Aggregate []ranking.AggregateRow
	// Missing counts query encounters with no stored result, either failed
	// or never computed.
	Missing int
}

// ReportDir is where a method's reports are written.
func (w *Workflow) ReportDir(method string) string {
	stage := identifyStageFor(method)
	return filepath.Join(w.cfg.ResultsDir(), method, w.fps[stage])
}

func identifyStageFor(method string) string {
	if method == MethodDescriptors {
		return StageDescriptorIdentify
	}
	return StageDTWIdentify
}

// Evaluate reads every stored identification result, writes the per-split
// and aggregate reports and returns them. It computes nothing: queries
// without a result are counted as missing.
func (w *Workflow) Evaluate(ctx context.Context) ([]MethodReport, error) {
	splits, ok, err := w.LoadSplits()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "evaluate", "load splits",
			"no splits for this configuration; run the pipeline first", nil)
	}

	var reports []MethodReport
	for _, method := range w.Methods() {
		stage := identifyStageFor(method)
		report := MethodReport{Method: method, Dir: w.ReportDir(method)}
		for run, split := range splits {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			var results []ranking.Result
			for _, q := range split.Queries {
				key := artifact.Key{Stage: stage, Fingerprint: w.fps[stage], Item: QueryItem(run, q.Key()), Sub: pipeline.DefaultSubKey}
				var result ranking.Result
				if err := w.store.Read(key, &result); err != nil {
					if !errors.Is(err, services.ErrNotFound) {
						return reports, err
					}
					report.Missing++
					continue
				}
				results = append(results, result)
			}
			ev := ranking.Evaluate(results, len(split.Identities()))
			dir := filepath.Join(report.Dir, "run-"+runLabel(run))
			if err := ranking.WriteReports(dir, ev); err != nil {
				return reports, fmt.Errorf("write %s reports: %w", method, err)
			}
			w.logEvaluation(method, run, dir, ev)
			report.Runs = append(report.Runs, ev)
		}
		report.Aggregate = ranking.Aggregate(report.Runs)
		if err := ranking.WriteAggregate(report.Dir, report.Aggregate); err != nil {
			return reports, fmt.Errorf("write %s aggregate: %w", method, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (w *Workflow) logEvaluation(method string, run int, dir string, ev ranking.Evaluation) {
	attrs := []logging.Attr{
		logging.String("method", method),
		logging.Int("run", run),
		logging.Int("ranked", ev.Ranked),
		logging.Int("unknown", ev.Unknown),
		logging.Float64("mean_mrr", ev.MeanMRR()),
		logging.String("reports", dir),
	}
	for _, k := range loggedTopK {
		if v, ok := ev.TopK[k]; ok {
			attrs = append(attrs, logging.Float64(fmt.Sprintf("top_%d", k), v))
		}
	}
	w.logger.Info("evaluation complete", logging.Args(attrs...)...)
}
