// Package curvature computes multi-scale integral curvature along a
// trailing edge.
package curvature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"curvrank/internal/contour"
	"curvrank/internal/services"
)

// MinPoints is the shortest edge curvature is defined for.
const MinPoints = 3

// Vector holds one curvature value per edge point for a single scale.
type Vector []float64

// Options controls how an edge is interpreted before curvature is computed.
type Options struct {
	TransposeDims bool
}

// Key formats a scale the way artifacts and descriptors are keyed.
func Key(scale float64) string {
	return fmt.Sprintf("%.3f", scale)
}

// Compute evaluates every scale independently over the same edge.
func Compute(edge contour.Edge, scales []float64, opts Options) (map[float64]Vector, error) {
	out := make(map[float64]Vector, len(scales))
	for _, scale := range scales {
		vec, err := ComputeScale(edge, scale, opts)
		if err != nil {
			return nil, err
		}
		out[scale] = vec
	}
	return out, nil
}

// ComputeScale returns the curvature of every point at one scale. The
// neighbourhood of a point is the contiguous run of points within
// scale*max(height, width) of it, clamped at the edge endpoints. The value
// is the signed area between that run and its chord, normalised by the
// half-disc area and clamped to [-1, 1].
func ComputeScale(edge contour.Edge, scale float64, opts Options) (Vector, error) {
	if len(edge) < MinPoints {
		return nil, services.Wrap(services.ErrInsufficientData, "curvature", "compute",
			fmt.Sprintf("edge has %d points, need %d", len(edge), MinPoints), nil)
	}
	if scale <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "curvature", "compute",
			fmt.Sprintf("scale %v must be positive", scale), nil)
	}
	if opts.TransposeDims {
		edge = edge.Transpose()
	}
	h, w := edge.Extent()
	radius := scale * math.Max(h, w)
	if radius <= 0 {
		return nil, services.Wrap(services.ErrInsufficientData, "curvature", "compute", "edge has zero extent", nil)
	}
	norm := math.Pi * radius * radius / 2

	out := make(Vector, len(edge))
	for i := range edge {
		lo, hi := neighbourhood(edge, i, radius)
		area := signedArea(edge[lo : hi+1])
		out[i] = math.Max(-1, math.Min(1, area/norm))
	}
	return out, nil
}

func neighbourhood(edge contour.Edge, i int, radius float64) (lo, hi int) {
	lo, hi = i, i
	for lo > 0 && contour.Distance(edge[i], edge[lo-1]) <= radius {
		lo--
	}
	for hi < len(edge)-1 && contour.Distance(edge[i], edge[hi+1]) <= radius {
		hi++
	}
	return lo, hi
}

// signedArea is the shoelace area of the polygon closed by the chord from
// the last point back to the first.
func signedArea(pts contour.Edge) float64 {
	if len(pts) < 3 {
		return 0
	}
	terms := make([]float64, len(pts))
	for j := range pts {
		a, b := pts[j], pts[(j+1)%len(pts)]
		terms[j] = a.Col*b.Row - b.Col*a.Row
	}
	return floats.Sum(terms) / 2
}
