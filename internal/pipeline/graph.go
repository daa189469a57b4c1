package pipeline

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is an explicit registry of stages.
type Graph struct {
	stages map[string]*Stage
	order  []string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{stages: make(map[string]*Stage)}
}

// Add registers a stage. Names must be unique.
func (g *Graph) Add(stages ...*Stage) error {
	for _, s := range stages {
		if err := s.validate(); err != nil {
			return err
		}
		if _, dup := g.stages[s.Name]; dup {
			return fmt.Errorf("stage %s registered twice", s.Name)
		}
		g.stages[s.Name] = s
		g.order = append(g.order, s.Name)
	}
	return nil
}

// Stage looks up a registered stage.
func (g *Graph) Stage(name string) (*Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Resolve returns the stages in dependency order. Stages without a mutual
// dependency keep registration order.
func (g *Graph) Resolve() ([]*Stage, error) {
	indegree := make(map[string]int, len(g.stages))
	downstream := make(map[string][]string, len(g.stages))
	for _, name := range g.order {
		s := g.stages[name]
		for _, up := range s.Upstream {
			if _, ok := g.stages[up]; !ok {
				return nil, fmt.Errorf("stage %s depends on unknown stage %s", name, up)
			}
			indegree[name]++
			downstream[up] = append(downstream[up], name)
		}
	}

	var ready []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	position := func(name string) int { return slices.Index(g.order, name) }

	out := make([]*Stage, 0, len(g.stages))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int { return position(a) - position(b) })
		name := ready[0]
		ready = ready[1:]
		out = append(out, g.stages[name])
		for _, next := range downstream[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(out) != len(g.stages) {
		var stuck []string
		for _, name := range g.order {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, fmt.Errorf("stage graph has a cycle through %s", strings.Join(stuck, ", "))
	}
	return out, nil
}
