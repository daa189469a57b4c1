package ann

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/floats"
)

// HNSWOptions configures graph construction and search.
type HNSWOptions struct {
	// M is the number of links created per inserted node and layer.
	M int
	// EF is the candidate list size for construction and search.
	EF int
	// Seed makes level assignment reproducible.
	Seed uint64
}

type hnswNode struct {
	connections [][]uint32
	vector      []float64
	layer       int
}

// HNSW is a hierarchical navigable small world graph over Euclidean
// vectors. It is built once and then searched concurrently.
type HNSW struct {
	dimension int
	mmax      int
	mmax0     int
	ml        float64
	ep        uint32
	maxLevel  int
	nodes     []*hnswNode
	opts      HNSWOptions
	rng       *rand.Rand
}

// NewHNSW creates an empty graph for vectors of the given dimension.
func NewHNSW(dimension int, opts HNSWOptions) *HNSW {
	if opts.M < 2 {
		opts.M = 2
	}
	if opts.EF < 1 {
		opts.EF = 1
	}
	return &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		opts:      opts,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int { return len(h.nodes) }

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Insert adds a vector and returns its row id. Insert is not safe for
// concurrent use.
func (h *HNSW) Insert(v []float64) (uint32, error) {
	if len(v) != h.dimension {
		return 0, fmt.Errorf("dimension mismatch: expected %d, got %d", h.dimension, len(v))
	}
	id := uint32(len(h.nodes))
	layer := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
	node := &hnswNode{
		vector:      slices.Clone(v),
		layer:       layer,
		connections: make([][]uint32, layer+1),
	}
	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = id
		h.maxLevel = layer
		return id, nil
	}

	curr, currDist := h.greedy(v, h.maxLevel, layer)
	candidates := &priorityQueue{}
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		h.searchLayer(v, &queueItem{node: curr, distance: currDist}, candidates, h.opts.EF, level)
		nearest := candidates.items[0]
		for _, it := range candidates.items {
			if it.distance < nearest.distance {
				nearest = it
			}
		}
		curr, currDist = nearest.node, nearest.distance
		h.selectNeighbours(candidates, h.opts.M)
		links := make([]uint32, candidates.Len())
		for i := candidates.Len() - 1; i >= 0; i-- {
			item, _ := heap.Pop(candidates).(*queueItem)
			links[i] = item.node
		}
		node.connections[level] = links
	}

	h.nodes = append(h.nodes, node)
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.connections[level] {
			h.link(neighbour, id, level)
		}
	}
	if layer > h.maxLevel {
		h.ep = id
		h.maxLevel = layer
	}
	return id, nil
}

// greedy walks down from the entry point to the first layer at or below
// stop, moving to any closer neighbour at each layer.
func (h *HNSW) greedy(q []float64, from, stop int) (uint32, float64) {
	curr := h.ep
	currDist := distance(q, h.nodes[curr].vector)
	for level := from; level > stop; level-- {
		changed := true
		for changed {
			changed = false
			for _, n := range h.nodes[curr].connections[level] {
				if d := distance(q, h.nodes[n].vector); d < currDist {
					curr, currDist = n, d
					changed = true
				}
			}
		}
	}
	return curr, currDist
}

func (h *HNSW) link(first, second uint32, level int) {
	maxConnections := h.mmax
	if level == 0 {
		maxConnections = h.mmax0
	}
	node := h.nodes[first]
	node.connections[level] = append(node.connections[level], second)
	if len(node.connections[level]) <= maxConnections {
		return
	}

	candidates := &priorityQueue{max: true}
	for _, id := range node.connections[level] {
		heap.Push(candidates, &queueItem{node: id, distance: distance(node.vector, h.nodes[id].vector)})
	}
	h.selectNeighbours(candidates, maxConnections)
	links := make([]uint32, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(candidates).(*queueItem)
		links[i] = item.node
	}
	node.connections[level] = links
}

// searchLayer leaves the ef closest nodes found from ep in found, which is
// turned into a max-heap.
func (h *HNSW) searchLayer(q []float64, ep *queueItem, found *priorityQueue, ef, level int) {
	var visited bitset.BitSet
	visited.Set(uint(ep.node))

	candidates := &priorityQueue{}
	heap.Push(candidates, &queueItem{node: ep.node, distance: ep.distance})

	found.max = true
	found.items = found.items[:0]
	heap.Push(found, &queueItem{node: ep.node, distance: ep.distance})

	for candidates.Len() > 0 {
		bound := found.top().distance
		candidate, _ := heap.Pop(candidates).(*queueItem)
		if candidate.distance > bound {
			break
		}
		node := h.nodes[candidate.node]
		if len(node.connections) <= level {
			continue
		}
		for _, n := range node.connections[level] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))
			d := distance(q, h.nodes[n].vector)
			if found.Len() < ef {
				heap.Push(found, &queueItem{node: n, distance: d})
				heap.Push(candidates, &queueItem{node: n, distance: d})
			} else if d < found.top().distance {
				heap.Pop(found)
				heap.Push(found, &queueItem{node: n, distance: d})
				heap.Push(candidates, &queueItem{node: n, distance: d})
			}
		}
	}
}

// selectNeighbours keeps at most m diverse neighbours in the max-heap
// found: a candidate is kept when it is closer to the base than to any
// neighbour already kept, and the closest rejects fill remaining slots.
func (h *HNSW) selectNeighbours(found *priorityQueue, m int) {
	if found.Len() <= m {
		return
	}
	ordered := make([]*queueItem, 0, found.Len())
	for found.Len() > 0 {
		item, _ := heap.Pop(found).(*queueItem)
		ordered = append(ordered, item)
	}
	slices.Reverse(ordered)

	kept := make([]*queueItem, 0, m)
	var rejected []*queueItem
	for _, item := range ordered {
		if len(kept) >= m {
			break
		}
		diverse := true
		for _, k := range kept {
			if distance(h.nodes[k.node].vector, h.nodes[item.node].vector) < item.distance {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, item)
		} else {
			rejected = append(rejected, item)
		}
	}
	for _, item := range rejected {
		if len(kept) >= m {
			break
		}
		kept = append(kept, item)
	}

	found.max = true
	for _, item := range kept {
		heap.Push(found, item)
	}
}

// Search returns up to k nearest rows in ascending distance order.
func (h *HNSW) Search(q []float64, k int) []Neighbor {
	if len(h.nodes) == 0 || k < 1 {
		return nil
	}
	curr, currDist := h.greedy(q, h.maxLevel, 0)
	found := &priorityQueue{max: true}
	h.searchLayer(q, &queueItem{node: curr, distance: currDist}, found, max(h.opts.EF, k), 0)
	for found.Len() > k {
		heap.Pop(found)
	}
	out := make([]Neighbor, found.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := heap.Pop(found).(*queueItem)
		out[i] = Neighbor{Row: int(item.node), Distance: item.distance}
	}
	return out
}
