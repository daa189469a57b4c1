package ann

import (
	"fmt"
	"slices"

	"curvrank/internal/descriptor"
	"curvrank/internal/ranking"
	"curvrank/internal/services"
)

// Aggregation names how neighbour distances become identity scores.
type Aggregation string

const (
	// LNBNN scores the gap to the (k+1)-th neighbour; lower is better.
	LNBNN Aggregation = "lnbnn"
	// InverseDistance sums 1/(eps+d); higher is better.
	InverseDistance Aggregation = "inverse_distance"
)

const inverseDistanceEpsilon = 1e-9

// Order reports how scores produced by the aggregation should be ranked.
func (a Aggregation) Order() ranking.Order {
	if a == InverseDistance {
		return ranking.Descending
	}
	return ranking.Ascending
}

// Identify scores every reference identity for one query descriptor. The
// returned scores follow Indexes.Identities order.
func (idx *Indexes) Identify(query descriptor.Descriptor, k int, agg Aggregation) ([]ranking.Score, error) {
	if !slices.Equal(query.Keys(), idx.Keys) {
		return nil, services.Wrap(services.ErrConfigurationMismatch, "identify", "lookup",
			fmt.Sprintf("query keys %v differ from reference keys %v", query.Keys(), idx.Keys), nil)
	}
	if k < 1 || k > len(idx.Identities) {
		return nil, services.Wrap(services.ErrConfigurationMismatch, "identify", "lookup",
			fmt.Sprintf("k=%d but database holds %d identities", k, len(idx.Identities)), nil)
	}
	if agg != LNBNN && agg != InverseDistance {
		return nil, services.Wrap(services.ErrConfiguration, "identify", "lookup",
			fmt.Sprintf("unknown aggregation %q", agg), nil)
	}

	totals := make(map[string]float64, len(idx.Identities))
	for _, key := range idx.Keys {
		ki, ok := idx.ByKey[key]
		if !ok {
			continue
		}
		m := query[key]
		rows, cols := m.Dims()
		if cols != ki.Dim {
			return nil, services.Wrap(services.ErrConfigurationMismatch, "identify", "lookup",
				fmt.Sprintf("key %s: query width %d, reference width %d", key, cols, ki.Dim), nil)
		}
		for i := range rows {
			ki.vote(m.RawRowView(i), k, agg, totals)
		}
	}

	scores := make([]ranking.Score, len(idx.Identities))
	for i, id := range idx.Identities {
		scores[i] = ranking.Score{Identity: id, Value: totals[id]}
	}
	return scores, nil
}

func (ki *KeyIndex) vote(row []float64, k int, agg Aggregation, totals map[string]float64) {
	neighbours := ki.Searcher.Search(row, k+1)
	if len(neighbours) == 0 {
		return
	}
	norm := neighbours[len(neighbours)-1].Distance
	voters := neighbours
	if len(neighbours) > k {
		voters = neighbours[:k]
	} else if len(neighbours) > 1 {
		voters = neighbours[:len(neighbours)-1]
	}
	seen := make(map[string]struct{}, len(voters))
	for _, n := range voters {
		name := ki.Labels[n.Row]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		switch agg {
		case LNBNN:
			totals[name] += n.Distance - norm
		case InverseDistance:
			totals[name] += 1 / (inverseDistanceEpsilon + n.Distance)
		}
	}
}
