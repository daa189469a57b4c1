package ranking

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRankAscendingAndDescending(t *testing.T) {
	scores := []Score{{"a", 3}, {"b", 1}, {"c", 2}}

	asc := Rank("q1", "c", scores, Ascending)
	want := []Score{{"b", 1}, {"c", 2}, {"a", 3}}
	if diff := cmp.Diff(want, asc.Ranked); diff != "" {
		t.Fatalf("ascending mismatch (-want +got):\n%s", diff)
	}
	if asc.Rank != 2 {
		t.Fatalf("expected rank 2, got %d", asc.Rank)
	}

	desc := Rank("q1", "a", scores, Descending)
	if desc.Ranked[0].Identity != "a" || desc.Rank != 1 {
		t.Fatalf("unexpected descending result %+v", desc)
	}
	if scores[0].Identity != "a" {
		t.Fatal("Rank must not reorder its input")
	}
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	scores := []Score{{"x", 1}, {"y", 0}, {"z", 1}, {"w", 1}}
	got := Rank("q", "w", scores, Ascending)
	want := []string{"y", "x", "z", "w"}
	var names []string
	for _, s := range got.Ranked {
		names = append(names, s.Identity)
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("tie order mismatch (-want +got):\n%s", diff)
	}
	if got.Rank != 4 {
		t.Fatalf("expected tied truth to rank 4, got %d", got.Rank)
	}

	votes := Rank("q", "z", scores, Descending)
	names = names[:0]
	for _, s := range votes.Ranked {
		names = append(names, s.Identity)
	}
	if diff := cmp.Diff([]string{"x", "z", "w", "y"}, names); diff != "" {
		t.Fatalf("descending tie order mismatch (-want +got):\n%s", diff)
	}
}

func TestRankUnknownTruth(t *testing.T) {
	got := Rank("q", "missing", []Score{{"a", 1}}, Ascending)
	if got.Rank != Unranked {
		t.Fatalf("expected %d, got %d", Unranked, got.Rank)
	}
}

func TestEvaluate(t *testing.T) {
	results := []Result{
		{Query: "e1", Truth: "a", Rank: 1},
		{Query: "e2", Truth: "a", Rank: 2},
		{Query: "e3", Truth: "b", Rank: 3},
		{Query: "e4", Truth: "ghost", Rank: Unranked},
	}
	ev := Evaluate(results, 3)

	if ev.Ranked != 3 || ev.Unknown != 1 {
		t.Fatalf("unexpected counts ranked=%d unknown=%d", ev.Ranked, ev.Unknown)
	}
	wantMRR := map[string]float64{"a": 0.75, "b": 1.0 / 3}
	if diff := cmp.Diff(wantMRR, ev.MRR, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("mrr mismatch (-want +got):\n%s", diff)
	}
	if _, ok := ev.MRR["ghost"]; ok {
		t.Fatal("identity without ranked queries must be absent from MRR")
	}
	wantTopK := map[int]float64{1: 25, 2: 50, 3: 75}
	if diff := cmp.Diff(wantTopK, ev.TopK, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("topk mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateProperties(t *testing.T) {
	const numRef = 6
	var results []Result
	for i := range 40 {
		rank := 1 + (i*7)%numRef
		results = append(results, Result{Query: "q", Truth: string(rune('a' + i%numRef)), Rank: rank})
	}
	ev := Evaluate(results, numRef)
	prev := 0.0
	for k := 1; k <= numRef; k++ {
		if ev.TopK[k] < prev {
			t.Fatalf("top-%d accuracy %v decreased from %v", k, ev.TopK[k], prev)
		}
		prev = ev.TopK[k]
	}
	if math.Abs(ev.TopK[numRef]-100) > 1e-9 {
		t.Fatalf("expected 100%% at k=%d, got %v", numRef, ev.TopK[numRef])
	}
	for _, r := range ev.Results {
		if r.Rank != Unranked && (r.Rank < 1 || r.Rank > numRef) {
			t.Fatalf("rank %d out of range", r.Rank)
		}
	}
}

func TestEvaluateUnknownQueriesCountAsMisses(t *testing.T) {
	results := []Result{
		{Query: "e1", Truth: "a", Rank: 1},
		{Query: "e2", Truth: "ghost", Rank: Unranked},
	}
	ev := Evaluate(results, 2)
	if ev.TopK[2] != 50 {
		t.Fatalf("expected top-2 accuracy 50, got %v", ev.TopK[2])
	}

	onlyUnknown := Evaluate([]Result{{Query: "e3", Truth: "ghost", Rank: Unranked}}, 2)
	if onlyUnknown.TopK[1] != 0 || onlyUnknown.Unknown != 1 {
		t.Fatalf("unexpected evaluation %+v", onlyUnknown)
	}
}

func TestEvaluateEmpty(t *testing.T) {
	ev := Evaluate(nil, 2)
	if ev.TopK[1] != 0 || ev.TopK[2] != 0 || ev.MeanMRR() != 0 {
		t.Fatalf("unexpected empty evaluation %+v", ev)
	}
}

func TestAggregate(t *testing.T) {
	runs := []Evaluation{
		{NumReference: 2, TopK: map[int]float64{1: 50, 2: 100}},
		{NumReference: 2, TopK: map[int]float64{1: 100, 2: 100}},
	}
	got := Aggregate(runs)
	want := []AggregateRow{
		{K: 1, Mean: 75, Min: 50, Max: 100, Std: 25},
		{K: 2, Mean: 100, Min: 100, Max: 100, Std: 0},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	results := []Result{
		Rank("enc-1", "a", []Score{{"a", 0}, {"b", 1}}, Ascending),
		Rank("enc-2", "b", []Score{{"a", 0}, {"b", 1}}, Ascending),
	}
	ev := Evaluate(results, 2)
	if err := WriteReports(dir, ev); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	if err := WriteAggregate(dir, Aggregate([]Evaluation{ev})); err != nil {
		t.Fatalf("WriteAggregate: %v", err)
	}

	all := readCSV(t, filepath.Join(dir, AllFile))
	wantAll := [][]string{
		{"Enc", "Ind", "Rank"},
		{"enc-1", "a", "1", "a", "b"},
		{"enc-2", "b", "2", "a", "b"},
	}
	if diff := cmp.Diff(wantAll, all); diff != "" {
		t.Fatalf("all.csv mismatch (-want +got):\n%s", diff)
	}

	mrr := readCSV(t, filepath.Join(dir, MRRFile))
	wantMRR := [][]string{{"individual", "mrr"}, {"a (1 enc.)", "1.0000"}, {"b (1 enc.)", "0.5000"}}
	if diff := cmp.Diff(wantMRR, mrr); diff != "" {
		t.Fatalf("mrr.csv mismatch (-want +got):\n%s", diff)
	}

	topk := readCSV(t, filepath.Join(dir, TopKFile))
	wantTopK := [][]string{{"topk", "accuracy"}, {"top-1", "50.0000"}, {"top-2", "100.0000"}}
	if diff := cmp.Diff(wantTopK, topk); diff != "" {
		t.Fatalf("topk.csv mismatch (-want +got):\n%s", diff)
	}

	agg := readCSV(t, filepath.Join(dir, AggregateFile))
	if len(agg) != 3 || agg[1][0] != "top-1" || agg[1][1] != "50.0000" {
		t.Fatalf("unexpected aggregate.csv %v", agg)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}
