package descriptor

import (
	"gonum.org/v1/gonum/mat"

	"curvrank/internal/contour"
	"curvrank/internal/curvature"
)

// EncodeBlock resamples every scale's curvature to length points over the
// edge's arc length. Each scale becomes a 1 x length matrix.
func EncodeBlock(curv map[float64]curvature.Vector, edge contour.Edge, length int) (Descriptor, error) {
	arc := edge.ArcLength()
	out := make(Descriptor, len(curv))
	for scale, vec := range curv {
		resampled, err := Resample(vec, arc, length)
		if err != nil {
			return nil, err
		}
		out[curvature.Key(scale)] = mat.NewDense(1, length, resampled)
	}
	return out, nil
}
