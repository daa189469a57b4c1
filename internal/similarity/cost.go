// Package similarity scores curvature signatures against each other with
// banded dynamic time warping.
package similarity

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"curvrank/internal/services"
)

// Cost measures the distance between two per-position feature rows.
type Cost func(a, b []float64) float64

// CostByName resolves a configured cost function.
func CostByName(name string) (Cost, error) {
	switch name {
	case "l1":
		return func(a, b []float64) float64 { return floats.Distance(a, b, 1) }, nil
	case "l2":
		return func(a, b []float64) float64 { return floats.Distance(a, b, 2) }, nil
	case "sqeuclidean":
		return func(a, b []float64) float64 {
			d := floats.Distance(a, b, 2)
			return d * d
		}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "similarity", "cost",
			fmt.Sprintf("unknown cost %q", name), nil)
	}
}
