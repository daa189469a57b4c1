package ranking

import (
	"slices"
)

// Order selects whether lower or higher scores rank first.
type Order int

const (
	// Ascending ranks the lowest score first (costs).
	Ascending Order = iota
	// Descending ranks the highest score first (votes).
	Descending
)

// Unranked marks a query whose true identity is absent from the database.
const Unranked = -1

// Score is one candidate identity's aggregate score for a query.
type Score struct {
	Identity string
	Value    float64
}

// Result is the ranked candidate list for one query encounter.
type Result struct {
	Query  string
	Truth  string
	Ranked []Score
	// Rank is the 1-based position of Truth, or Unranked.
	Rank int
}

// Rank orders scores and locates the true identity. The sort is stable so
// tied scores keep their input order.
func Rank(query, truth string, scores []Score, order Order) Result {
	ranked := slices.Clone(scores)
	slices.SortStableFunc(ranked, func(a, b Score) int {
		if order == Descending {
			a, b = b, a
		}
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		default:
			return 0
		}
	})
	rank := Unranked
	for i, s := range ranked {
		if s.Identity == truth {
			rank = i + 1
			break
		}
	}
	return Result{Query: query, Truth: truth, Ranked: ranked, Rank: rank}
}
