package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"curvrank/internal/services"
)

// Aligner computes banded DTW costs with a fixed configuration.
type Aligner struct {
	// Window is the Sakoe-Chiba band half-width.
	Window int
	Cost   Cost
	// Weights scales the cost at each query position; nil means uniform.
	Weights []float64
}

// Align returns the minimum cumulative alignment cost between q and d.
// Rows are positions and columns are scales; both must have the same
// number of columns. When the lengths differ the band is widened to the
// length difference so a complete alignment always exists.
func (a Aligner) Align(q, d *mat.Dense) (float64, error) {
	n, qc := q.Dims()
	m, dc := d.Dims()
	if qc != dc {
		return 0, services.Wrap(services.ErrConfigurationMismatch, "similarity", "dtw",
			fmt.Sprintf("query has %d scales, reference has %d", qc, dc), nil)
	}
	if a.Weights != nil && len(a.Weights) != n {
		return 0, services.Wrap(services.ErrConfigurationMismatch, "similarity", "dtw",
			fmt.Sprintf("%d weights for query of length %d", len(a.Weights), n), nil)
	}
	if a.Window < 0 {
		return 0, services.Wrap(services.ErrConfiguration, "similarity", "dtw", "negative window", nil)
	}
	band := max(a.Window, abs(n-m))

	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0
	for i := 1; i <= n; i++ {
		for j := range cur {
			cur[j] = math.Inf(1)
		}
		w := 1.0
		if a.Weights != nil {
			w = a.Weights[i-1]
		}
		qi := q.RawRowView(i - 1)
		for j := max(1, i-band); j <= min(m, i+band); j++ {
			step := w * a.Cost(qi, d.RawRowView(j-1))
			cur[j] = step + min(prev[j], prev[j-1], cur[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[m], nil
}

// EncounterCost is the best pairwise alignment between any query image
// and any reference image.
func (a Aligner) EncounterCost(queries, refs []*mat.Dense) (float64, error) {
	best := math.Inf(1)
	for _, q := range queries {
		for _, d := range refs {
			c, err := a.Align(q, d)
			if err != nil {
				return 0, err
			}
			best = min(best, c)
		}
	}
	return best, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
