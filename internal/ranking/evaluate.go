package ranking

// Evaluation summarises a set of ranked queries.
type Evaluation struct {
	Results []Result
	// MRR holds the mean reciprocal rank of every identity with at least one
	// ranked query.
	MRR map[string]float64
	// Queries counts ranked queries per identity.
	Queries map[string]int
	// TopK maps k to the percentage of all queries with rank <= k, for k
	// from 1 to NumReference. Unknown queries count as misses.
	TopK         map[int]float64
	Ranked       int
	Unknown      int
	NumReference int
}

// Evaluate aggregates ranked results. Queries whose identity is absent from
// the database are counted in Unknown; they never hit in TopK and are left
// out of MRR.
func Evaluate(results []Result, numReference int) Evaluation {
	ev := Evaluation{
		Results:      results,
		MRR:          make(map[string]float64),
		Queries:      make(map[string]int),
		TopK:         make(map[int]float64, numReference),
		NumReference: numReference,
	}
	hits := make([]int, numReference+1)
	for _, r := range results {
		if r.Rank == Unranked {
			ev.Unknown++
			continue
		}
		ev.Ranked++
		ev.Queries[r.Truth]++
		ev.MRR[r.Truth] += 1 / float64(r.Rank)
		if r.Rank <= numReference {
			hits[r.Rank]++
		}
	}
	for id, sum := range ev.MRR {
		ev.MRR[id] = sum / float64(ev.Queries[id])
	}
	total := ev.Ranked + ev.Unknown
	cumulative := 0
	for k := 1; k <= numReference; k++ {
		cumulative += hits[k]
		if total > 0 {
			ev.TopK[k] = 100 * float64(cumulative) / float64(total)
		} else {
			ev.TopK[k] = 0
		}
	}
	return ev
}

// MeanMRR averages the per-identity mean reciprocal ranks.
func (e Evaluation) MeanMRR() float64 {
	if len(e.MRR) == 0 {
		return 0
	}
	var sum float64
	for _, v := range e.MRR {
		sum += v
	}
	return sum / float64(len(e.MRR))
}
