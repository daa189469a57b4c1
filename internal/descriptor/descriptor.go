package descriptor

import (
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/mat"

	"curvrank/internal/services"
)

// Descriptor maps a scale or kernel key to its encoded matrix.
type Descriptor map[string]*mat.Dense

// Keys returns the descriptor keys in sorted order.
func (d Descriptor) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// SameKeys reports whether two descriptors carry exactly the same key set.
func SameKeys(a, b Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Stack places the 1xL block vectors for keys side by side, producing an
// L x len(keys) matrix with positions as rows and scales as columns.
func (d Descriptor) Stack(keys []string) (*mat.Dense, error) {
	if len(keys) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "descriptor", "stack", "no keys requested", nil)
	}
	var length int
	for i, k := range keys {
		m, ok := d[k]
		if !ok {
			return nil, services.Wrap(services.ErrConfigurationMismatch, "descriptor", "stack",
				fmt.Sprintf("key %s missing", k), nil)
		}
		r, c := m.Dims()
		if r != 1 {
			return nil, services.Wrap(services.ErrConfiguration, "descriptor", "stack",
				fmt.Sprintf("key %s is %dx%d, expected a block vector", k, r, c), nil)
		}
		if i == 0 {
			length = c
		} else if c != length {
			return nil, services.Wrap(services.ErrConfigurationMismatch, "descriptor", "stack",
				fmt.Sprintf("key %s has length %d, expected %d", k, c, length), nil)
		}
	}
	out := mat.NewDense(length, len(keys), nil)
	for j, k := range keys {
		out.SetCol(j, d[k].RawRowView(0))
	}
	return out, nil
}
