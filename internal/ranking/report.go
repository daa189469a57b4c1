package ranking

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"curvrank/internal/fileutil"
)

// Report file names written under a run directory.
const (
	AllFile       = "all.csv"
	MRRFile       = "mrr.csv"
	TopKFile      = "topk.csv"
	AggregateFile = "aggregate.csv"
)

// WriteReports writes the per-query, per-identity and top-k CSV files for
// one evaluation into dir.
func WriteReports(dir string, ev Evaluation) error {
	if err := writeCSV(filepath.Join(dir, AllFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"Enc", "Ind", "Rank"}); err != nil {
			return err
		}
		for _, r := range ev.Results {
			row := []string{r.Query, r.Truth, strconv.Itoa(r.Rank)}
			for _, s := range r.Ranked {
				row = append(row, s.Identity)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, MRRFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"individual", "mrr"}); err != nil {
			return err
		}
		for _, id := range slices.Sorted(maps.Keys(ev.MRR)) {
			name := fmt.Sprintf("%s (%d enc.)", id, ev.Queries[id])
			if err := w.Write([]string{name, formatFloat(ev.MRR[id])}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return writeCSV(filepath.Join(dir, TopKFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"topk", "accuracy"}); err != nil {
			return err
		}
		for k := 1; k <= ev.NumReference; k++ {
			if err := w.Write([]string{fmt.Sprintf("top-%d", k), formatFloat(ev.TopK[k])}); err != nil {
				return err
			}
		}
		return nil
	})
}

// AggregateRow summarises top-k accuracy across runs.
type AggregateRow struct {
	K    int
	Mean float64
	Min  float64
	Max  float64
	Std  float64
}

// Aggregate combines the top-k accuracy of several runs. Runs with fewer
// reference identities contribute their final accuracy to larger k.
func Aggregate(runs []Evaluation) []AggregateRow {
	maxK := 0
	for _, ev := range runs {
		maxK = max(maxK, ev.NumReference)
	}
	if len(runs) == 0 || maxK == 0 {
		return nil
	}
	rows := make([]AggregateRow, 0, maxK)
	values := make([]float64, len(runs))
	for k := 1; k <= maxK; k++ {
		for i, ev := range runs {
			values[i] = ev.TopK[min(k, ev.NumReference)]
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		rows = append(rows, AggregateRow{K: k, Mean: mean, Min: floats.Min(values), Max: floats.Max(values), Std: std})
	}
	return rows
}

// WriteAggregate writes the cross-run summary into dir.
func WriteAggregate(dir string, rows []AggregateRow) error {
	return writeCSV(filepath.Join(dir, AggregateFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"topk", "mean", "min", "max", "std"}); err != nil {
			return err
		}
		for _, r := range rows {
			rec := []string{fmt.Sprintf("top-%d", r.K), formatFloat(r.Mean), formatFloat(r.Min), formatFloat(r.Max), formatFloat(r.Std)}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	return fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := fill(w); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		w.Flush()
		return w.Error()
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
