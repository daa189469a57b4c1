package similarity

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"
)

// SpatialWeights evaluates the Bernstein polynomial with the given
// coefficients at length evenly spaced positions on [0, 1]. With no
// coefficients every position weighs 1.
func SpatialWeights(length int, coeffs []float64) []float64 {
	out := make([]float64, length)
	if len(coeffs) == 0 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	if length == 1 {
		return []float64{bernstein(0.5, coeffs)}
	}
	for i, x := range floats.Span(make([]float64, length), 0, 1) {
		out[i] = bernstein(x, coeffs)
	}
	return out
}

func bernstein(x float64, coeffs []float64) float64 {
	n := len(coeffs) - 1
	var sum float64
	for i, c := range coeffs {
		sum += c * float64(combin.Binomial(n, i)) * math.Pow(x, float64(i)) * math.Pow(1-x, float64(n-i))
	}
	return sum
}
