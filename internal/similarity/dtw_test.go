package similarity_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"curvrank/internal/ranking"
	"curvrank/internal/services"
	"curvrank/internal/similarity"
)

func randomSignature(rng *rand.Rand, length, scales int) *mat.Dense {
	data := make([]float64, length*scales)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(length, scales, data)
}

func mustCost(t *testing.T, name string) similarity.Cost {
	t.Helper()
	c, err := similarity.CostByName(name)
	if err != nil {
		t.Fatalf("CostByName(%q): %v", name, err)
	}
	return c
}

func TestAlignSelfIsZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	q := randomSignature(rng, 64, 4)
	for _, cost := range []string{"l1", "l2", "sqeuclidean"} {
		a := similarity.Aligner{Window: 8, Cost: mustCost(t, cost)}
		got, err := a.Align(q, mat.DenseCopyOf(q))
		if err != nil {
			t.Fatalf("%s: %v", cost, err)
		}
		if got != 0 {
			t.Fatalf("%s: expected zero self cost, got %v", cost, got)
		}
	}
}

func TestAlignNonNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a := similarity.Aligner{Window: 5, Cost: mustCost(t, "l2"), Weights: similarity.SpatialWeights(40, []float64{0.1, 0.9, 0.3})}
	for range 20 {
		got, err := a.Align(randomSignature(rng, 40, 3), randomSignature(rng, 40, 3))
		if err != nil {
			t.Fatal(err)
		}
		if got < 0 || math.IsInf(got, 0) || math.IsNaN(got) {
			t.Fatalf("unexpected cost %v", got)
		}
	}
}

func TestAlignZeroWindowIsPointwise(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	q := randomSignature(rng, 32, 2)
	d := randomSignature(rng, 32, 2)
	cost := mustCost(t, "l1")
	var want float64
	for i := range 32 {
		want += cost(q.RawRowView(i), d.RawRowView(i))
	}
	got, err := similarity.Aligner{Window: 0, Cost: cost}.Align(q, d)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("window 0 cost %v, pointwise sum %v", got, want)
	}

	wide, err := similarity.Aligner{Window: 32, Cost: cost}.Align(q, d)
	if err != nil {
		t.Fatal(err)
	}
	if wide > got+1e-12 {
		t.Fatalf("wider band must not increase cost: %v > %v", wide, got)
	}
}

func TestAlignShiftWithinBand(t *testing.T) {
	base := make([]float64, 50)
	shifted := make([]float64, 50)
	for i := range base {
		base[i] = math.Sin(float64(i) / 4)
		shifted[i] = math.Sin(float64(i-2) / 4)
	}
	q := mat.NewDense(50, 1, base)
	d := mat.NewDense(50, 1, shifted)
	cost := mustCost(t, "l2")
	narrow, err := similarity.Aligner{Window: 0, Cost: cost}.Align(q, d)
	if err != nil {
		t.Fatal(err)
	}
	wide, err := similarity.Aligner{Window: 3, Cost: cost}.Align(q, d)
	if err != nil {
		t.Fatal(err)
	}
	if wide >= narrow {
		t.Fatalf("expected warping to reduce cost: window 3 %v, window 0 %v", wide, narrow)
	}
}

func TestAlignUnequalLengths(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	got, err := similarity.Aligner{Window: 0, Cost: mustCost(t, "l2")}.Align(randomSignature(rng, 30, 2), randomSignature(rng, 20, 2))
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got, 0) {
		t.Fatal("expected a finite alignment when lengths differ")
	}
}

func TestAlignRejectsMismatchedScales(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	_, err := similarity.Aligner{Cost: mustCost(t, "l2")}.Align(randomSignature(rng, 10, 2), randomSignature(rng, 10, 3))
	if !errors.Is(err, services.ErrConfigurationMismatch) {
		t.Fatalf("expected configuration mismatch, got %v", err)
	}
	_, err = similarity.Aligner{Cost: mustCost(t, "l2"), Weights: []float64{1}}.Align(randomSignature(rng, 10, 2), randomSignature(rng, 10, 2))
	if !errors.Is(err, services.ErrConfigurationMismatch) {
		t.Fatalf("expected weight length mismatch, got %v", err)
	}
}

func TestCostByNameUnknown(t *testing.T) {
	if _, err := similarity.CostByName("cosine"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSpatialWeights(t *testing.T) {
	flat := similarity.SpatialWeights(16, nil)
	for _, w := range flat {
		if w != 1 {
			t.Fatalf("expected uniform weights, got %v", flat)
		}
	}
	// Bernstein basis polynomials sum to one.
	ones := similarity.SpatialWeights(33, []float64{1, 1, 1, 1, 1})
	for i, w := range ones {
		if math.Abs(w-1) > 1e-12 {
			t.Fatalf("position %d: weight %v", i, w)
		}
	}
	ramp := similarity.SpatialWeights(3, []float64{0, 1})
	if math.Abs(ramp[0]) > 1e-12 || math.Abs(ramp[1]-0.5) > 1e-12 || math.Abs(ramp[2]-1) > 1e-12 {
		t.Fatalf("unexpected linear weights %v", ramp)
	}
}

func TestEncounterCostTakesBestPair(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	match := randomSignature(rng, 24, 2)
	a := similarity.Aligner{Window: 4, Cost: mustCost(t, "l2")}
	queries := []*mat.Dense{randomSignature(rng, 24, 2), match}
	refs := []*mat.Dense{randomSignature(rng, 24, 2), mat.DenseCopyOf(match), randomSignature(rng, 24, 2)}
	got, err := a.EncounterCost(queries, refs)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("expected the matching pair to win with cost 0, got %v", got)
	}
}

func TestIdentifyExactMatchRanksFirst(t *testing.T) {
	// Three reference identities with one encounter each at scale 0.1.
	rng := rand.New(rand.NewPCG(13, 14))
	refs := map[string]*mat.Dense{
		"1": randomSignature(rng, 64, 1),
		"2": randomSignature(rng, 64, 1),
		"3": randomSignature(rng, 64, 1),
	}
	query := mat.DenseCopyOf(refs["2"])
	a := similarity.Aligner{Window: 8, Cost: mustCost(t, "l2"), Weights: similarity.SpatialWeights(64, nil)}

	var scores []ranking.Score
	for _, id := range []string{"1", "2", "3"} {
		c, err := a.EncounterCost([]*mat.Dense{query}, []*mat.Dense{refs[id]})
		if err != nil {
			t.Fatal(err)
		}
		scores = append(scores, ranking.Score{Identity: id, Value: c})
	}
	res := ranking.Rank("query", "2", scores, ranking.Ascending)
	if res.Rank != 1 || res.Ranked[0].Identity != "2" || res.Ranked[0].Value != 0 {
		t.Fatalf("unexpected ranking %+v", res)
	}
}
