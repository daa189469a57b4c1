package descriptor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"curvrank/internal/contour"
	"curvrank/internal/curvature"
	"curvrank/internal/services"
)

const anchorEpsilon = 1e-6

// KeypointOptions shapes keypoint-local descriptors.
type KeypointOptions struct {
	// Length is the resampled signal length anchors are placed on.
	Length       int
	NumKeypoints int
	FeatDim      int
	// Uniform spaces anchors evenly by index instead of by cumulative
	// signal magnitude.
	Uniform bool
}

func (o KeypointOptions) validate() error {
	if o.Length < 2 || o.NumKeypoints < 1 || o.FeatDim < 1 {
		return services.Wrap(services.ErrConfiguration, "descriptor", "keypoints",
			fmt.Sprintf("invalid shape length=%d keypoints=%d feat_dim=%d", o.Length, o.NumKeypoints, o.FeatDim), nil)
	}
	if o.NumKeypoints > o.Length {
		return services.Wrap(services.ErrConfiguration, "descriptor", "keypoints",
			fmt.Sprintf("%d keypoints exceed signal length %d", o.NumKeypoints, o.Length), nil)
	}
	return nil
}

// EncodeCurvKeypoints resamples each curvature scale to opts.Length and
// extracts keypoint-local features from it.
func EncodeCurvKeypoints(curv map[float64]curvature.Vector, edge contour.Edge, opts KeypointOptions) (Descriptor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	arc := edge.ArcLength()
	out := make(Descriptor, len(curv))
	for scale, vec := range curv {
		resampled, err := Resample(vec, arc, opts.Length)
		if err != nil {
			return nil, err
		}
		feats, err := KeypointFeatures(resampled, opts)
		if err != nil {
			return nil, err
		}
		out[curvature.Key(scale)] = feats
	}
	return out, nil
}

// Anchors returns numKeypoints indices into signal. Uniform anchors are
// evenly spaced; otherwise they sit at equal quantiles of the cumulative
// absolute signal, so strongly bending regions receive more anchors.
func Anchors(signal []float64, numKeypoints int, uniform bool) []int {
	n := len(signal)
	out := make([]int, numKeypoints)
	if numKeypoints == 1 {
		out[0] = (n - 1) / 2
		return out
	}
	if uniform {
		for i, p := range floats.Span(make([]float64, numKeypoints), 0, float64(n-1)) {
			out[i] = int(math.Round(p))
		}
		return out
	}
	cum := make([]float64, n)
	for i, v := range signal {
		cum[i] = math.Abs(v) + anchorEpsilon
	}
	floats.CumSum(cum, cum)
	total := cum[n-1]
	quantiles := floats.Span(make([]float64, numKeypoints), cum[0], total)
	for i, q := range quantiles {
		idx := sort.SearchFloat64s(cum, q)
		out[i] = min(idx, n-1)
	}
	return out
}

// KeypointFeatures samples opts.FeatDim Gaussian-weighted values around
// each anchor and L2-normalises every row.
func KeypointFeatures(signal []float64, opts KeypointOptions) (*mat.Dense, error) {
	if len(signal) < 2 || len(signal) < opts.NumKeypoints {
		return nil, services.Wrap(services.ErrInsufficientData, "descriptor", "keypoints",
			fmt.Sprintf("signal of %d samples for %d keypoints", len(signal), opts.NumKeypoints), nil)
	}
	n := len(signal)
	var pl interp.PiecewiseLinear
	if err := pl.Fit(floats.Span(make([]float64, n), 0, float64(n-1)), signal); err != nil {
		return nil, fmt.Errorf("keypoint interpolation: %w", err)
	}

	halfWidth := math.Max(1, float64(n)/float64(2*opts.NumKeypoints))
	window := distuv.Normal{Mu: 0, Sigma: halfWidth / 2}
	peak := window.Prob(0)
	offsets := make([]float64, opts.FeatDim)
	if opts.FeatDim == 1 {
		offsets[0] = 0
	} else {
		floats.Span(offsets, -halfWidth, halfWidth)
	}
	weights := make([]float64, opts.FeatDim)
	for i, off := range offsets {
		weights[i] = window.Prob(off) / peak
	}

	out := mat.NewDense(opts.NumKeypoints, opts.FeatDim, nil)
	row := make([]float64, opts.FeatDim)
	for r, anchor := range Anchors(signal, opts.NumKeypoints, opts.Uniform) {
		for i, off := range offsets {
			row[i] = weights[i] * pl.Predict(float64(anchor)+off)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		out.SetRow(r, row)
	}
	return out, nil
}
