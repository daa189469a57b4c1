package descriptor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"curvrank/internal/services"
)

// Resample linearly interpolates values, sampled at the cumulative arc
// lengths in positions, onto length evenly spaced arc-length positions.
// Repeated positions (coincident points) keep their first sample.
func Resample(values, positions []float64, length int) ([]float64, error) {
	if len(values) != len(positions) {
		return nil, fmt.Errorf("resample: %d values for %d positions", len(values), len(positions))
	}
	if length < 2 {
		return nil, fmt.Errorf("resample: target length %d must be at least 2", length)
	}
	xs := make([]float64, 0, len(positions))
	ys := make([]float64, 0, len(values))
	for i, p := range positions {
		if len(xs) > 0 && p <= xs[len(xs)-1] {
			continue
		}
		xs = append(xs, p)
		ys = append(ys, values[i])
	}
	if len(xs) < 2 {
		return nil, services.Wrap(services.ErrInsufficientData, "descriptor", "resample",
			fmt.Sprintf("%d distinct positions", len(xs)), nil)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	targets := floats.Span(make([]float64, length), xs[0], xs[len(xs)-1])
	out := make([]float64, length)
	for i, x := range targets {
		out[i] = pl.Predict(x)
	}
	return out, nil
}

// ResampleUniform resamples a signal whose samples are evenly spaced.
func ResampleUniform(values []float64, length int) ([]float64, error) {
	if len(values) < 2 {
		return nil, services.Wrap(services.ErrInsufficientData, "descriptor", "resample",
			fmt.Sprintf("%d samples", len(values)), nil)
	}
	positions := floats.Span(make([]float64, len(values)), 0, float64(len(values)-1))
	return Resample(values, positions, length)
}
