package descriptor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"curvrank/internal/contour"
	"curvrank/internal/services"
)

// GaussPair selects a derivative order m and bandwidth s (in samples).
type GaussPair struct {
	M int
	S float64
}

// Key formats the pair the way artifacts are keyed.
func (p GaussPair) Key() string {
	return fmt.Sprintf("(%d, %g)", p.M, p.S)
}

// GaussPairs zips derivative orders and bandwidths.
func GaussPairs(m []int, s []float64) []GaussPair {
	out := make([]GaussPair, 0, min(len(m), len(s)))
	for i := range min(len(m), len(s)) {
		out = append(out, GaussPair{M: m[i], S: s[i]})
	}
	return out
}

// EncodeGauss resamples the edge to opts.Length points, filters its tangent
// angle with each Gaussian derivative kernel and extracts keypoint-local
// features from the response.
func EncodeGauss(edge contour.Edge, pairs []GaussPair, opts KeypointOptions) (Descriptor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	angle, err := TangentAngle(edge, opts.Length)
	if err != nil {
		return nil, err
	}
	out := make(Descriptor, len(pairs))
	for _, pair := range pairs {
		feats, err := KeypointFeatures(GaussianDerivative(angle, pair), opts)
		if err != nil {
			return nil, err
		}
		out[pair.Key()] = feats
	}
	return out, nil
}

// TangentAngle resamples the edge over arc length and returns the unwrapped
// direction of travel at every sample.
func TangentAngle(edge contour.Edge, length int) ([]float64, error) {
	if len(edge) < 2 {
		return nil, services.Wrap(services.ErrInsufficientData, "descriptor", "tangent angle",
			fmt.Sprintf("edge has %d points", len(edge)), nil)
	}
	arc := edge.ArcLength()
	rows := make([]float64, len(edge))
	cols := make([]float64, len(edge))
	for i, p := range edge {
		rows[i], cols[i] = p.Row, p.Col
	}
	rr, err := Resample(rows, arc, length)
	if err != nil {
		return nil, err
	}
	cc, err := Resample(cols, arc, length)
	if err != nil {
		return nil, err
	}

	out := make([]float64, length)
	for i := 0; i < length-1; i++ {
		out[i] = math.Atan2(rr[i+1]-rr[i], cc[i+1]-cc[i])
	}
	out[length-1] = out[length-2]
	for i := 1; i < length; i++ {
		d := out[i] - out[i-1]
		for d > math.Pi {
			out[i] -= 2 * math.Pi
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			out[i] += 2 * math.Pi
			d += 2 * math.Pi
		}
	}
	return out, nil
}

// GaussianDerivative convolves signal with the m-th derivative of a
// Gaussian of standard deviation s, truncated at four sigma. Samples beyond
// either end repeat the boundary value.
func GaussianDerivative(signal []float64, pair GaussPair) []float64 {
	kernel := gaussianKernel(pair)
	radius := len(kernel) / 2
	n := len(signal)
	out := make([]float64, n)
	for i := range n {
		var acc float64
		for j, w := range kernel {
			idx := min(max(i+radius-j, 0), n-1)
			acc += w * signal[idx]
		}
		out[i] = acc
	}
	return out
}

func gaussianKernel(pair GaussPair) []float64 {
	sigma := pair.S
	radius := max(1, int(math.Ceil(4*sigma)))
	g := distuv.Normal{Mu: 0, Sigma: sigma}
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Pow(-1/sigma, float64(pair.M)) * hermite(pair.M, x/sigma) * g.Prob(x)
	}
	return kernel
}

// hermite evaluates the probabilists' Hermite polynomial He_n(x).
func hermite(n int, x float64) float64 {
	if n == 0 {
		return 1
	}
	prev, cur := 1.0, x
	for k := 1; k < n; k++ {
		prev, cur = cur, x*cur-float64(k)*prev
	}
	return cur
}
