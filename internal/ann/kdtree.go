package ann

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// labeled is a reference row that remembers its position in the stacked
// matrix.
type labeled struct {
	vec []float64
	row int
}

var _ kdtree.Comparable = labeled{}

func (p labeled) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.vec[d] - c.(labeled).vec[d]
}

func (p labeled) Dims() int { return len(p.vec) }

// Distance is the squared Euclidean distance.
func (p labeled) Distance(c kdtree.Comparable) float64 {
	q := c.(labeled)
	var sum float64
	for i, v := range p.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

type labeledSet []labeled

func (s labeledSet) Index(i int) kdtree.Comparable { return s[i] }
func (s labeledSet) Len() int                      { return len(s) }
func (s labeledSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s labeledSet) Pivot(d kdtree.Dim) int {
	return plane{labeledSet: s, dim: d}.pivot()
}

// plane sorts a labeledSet along one dimension for median partitioning.
type plane struct {
	labeledSet
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.labeledSet[i].vec[p.dim] < p.labeledSet[j].vec[p.dim]
}

func (p plane) Swap(i, j int) {
	p.labeledSet[i], p.labeledSet[j] = p.labeledSet[j], p.labeledSet[i]
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{labeledSet: p.labeledSet[start:end], dim: p.dim}
}

func (p plane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// KDTree is an exact nearest-neighbour index.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree builds a tree over rows. Row ids returned by Search index into
// rows.
func NewKDTree(rows [][]float64) *KDTree {
	set := make(labeledSet, len(rows))
	for i, r := range rows {
		set[i] = labeled{vec: r, row: i}
	}
	return &KDTree{tree: kdtree.New(set, false), size: len(rows)}
}

// Len returns the number of indexed rows.
func (t *KDTree) Len() int { return t.size }

// Search returns up to k nearest rows in ascending distance order.
func (t *KDTree) Search(q []float64, k int) []Neighbor {
	if t.size == 0 || k < 1 {
		return nil
	}
	keep := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keep, labeled{vec: q, row: -1})
	out := make([]Neighbor, 0, k)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Row: c.Comparable.(labeled).row, Distance: math.Sqrt(c.Dist)})
	}
	slices.SortFunc(out, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return a.Row - b.Row
		}
	})
	return out
}
