package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gonum.org/v1/gonum/mat"

	"curvrank/internal/ann"
	"curvrank/internal/dataset"
	"curvrank/internal/logging"
	"curvrank/internal/ranking"
	"curvrank/internal/services"
)

// Identifier ranks database identities for query encounters. Reference
// material is loaded once per split and shared by every query of it.
type Identifier struct {
	w      *Workflow
	logger *slog.Logger

	mu      sync.Mutex
	dtw     map[int]func() (*dtwDatabase, error)
	indexes map[int]func() (*ann.Indexes, error)
}

type dtwDatabase struct {
	identities []string
	signatures map[string][]*mat.Dense
}

func newIdentifier(w *Workflow) *Identifier {
	return &Identifier{
		w:       w,
		logger:  logging.NewComponentLogger(w.logger, "identify"),
		dtw:     make(map[int]func() (*dtwDatabase, error)),
		indexes: make(map[int]func() (*ann.Indexes, error)),
	}
}

// IdentifyDTW scores each identity by the cheapest alignment between any
// query image and any of the identity's database images, lowest first.
func (id *Identifier) IdentifyDTW(ctx context.Context, split dataset.Split, query dataset.Encounter) (ranking.Result, error) {
	aligner, err := id.w.aligner()
	if err != nil {
		return ranking.Result{}, err
	}
	db, err := id.dtwDatabase(split)()
	if err != nil {
		return ranking.Result{}, err
	}
	keys := id.w.scaleKeys()
	queries, err := id.signatures(query.Items, keys)
	if err != nil {
		return ranking.Result{}, err
	}

	scores := make([]ranking.Score, 0, len(db.identities))
	for _, identity := range db.identities {
		if err := ctx.Err(); err != nil {
			return ranking.Result{}, err
		}
		cost, err := aligner.EncounterCost(queries, db.signatures[identity])
		if err != nil {
			return ranking.Result{}, err
		}
		scores = append(scores, ranking.Score{Identity: identity, Value: cost})
	}
	return ranking.Rank(query.Key(), query.Individual, scores, ranking.Ascending), nil
}

// IdentifyDescriptors sums each identity's aggregated neighbour score over
// every query image of the encounter.
func (id *Identifier) IdentifyDescriptors(ctx context.Context, split dataset.Split, query dataset.Encounter) (ranking.Result, error) {
	idx, err := id.index(ctx, split)()
	if err != nil {
		return ranking.Result{}, err
	}
	agg := ann.Aggregation(id.w.cfg.Identification.Aggregation)
	stage := id.w.descriptorStage()
	keys := id.w.descriptorKeys()

	totals := make([]ranking.Score, len(idx.Identities))
	for i, identity := range idx.Identities {
		totals[i].Identity = identity
	}
	used := 0
	for _, item := range query.Items {
		if err := ctx.Err(); err != nil {
			return ranking.Result{}, err
		}
		desc, err := id.w.ReadDescriptor(stage, item, keys)
		if err != nil {
			id.logger.Debug("query image skipped", logging.Item(item), logging.Error(err))
			continue
		}
		scores, err := idx.Identify(desc, id.w.cfg.Identification.K, agg)
		if err != nil {
			return ranking.Result{}, err
		}
		for i, s := range scores {
			totals[i].Value += s.Value
		}
		used++
	}
	if used == 0 {
		return ranking.Result{}, services.Wrap(services.ErrExtraction, StageDescriptorIdentify, "read query",
			fmt.Sprintf("encounter %s has no usable descriptors", query.Key()), nil)
	}
	return ranking.Rank(query.Key(), query.Individual, totals, agg.Order()), nil
}

// signatures stacks each item's per-scale signatures into a positions x
// scales matrix. Items without signatures are skipped; having none is an
// extraction failure.
func (id *Identifier) signatures(items, keys []string) ([]*mat.Dense, error) {
	var out []*mat.Dense
	for _, item := range items {
		desc, err := id.w.ReadDescriptor(StageDTWSignatures, item, keys)
		if err != nil {
			id.logger.Debug("image skipped", logging.Item(item), logging.Error(err))
			continue
		}
		stacked, err := desc.Stack(keys)
		if err != nil {
			return nil, err
		}
		out = append(out, stacked)
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrExtraction, StageDTWSignatures, "read signatures",
			fmt.Sprintf("none of %d images has a signature", len(items)), nil)
	}
	return out, nil
}

func (id *Identifier) dtwDatabase(split dataset.Split) func() (*dtwDatabase, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	load, ok := id.dtw[split.Run]
	if !ok {
		load = sync.OnceValues(func() (*dtwDatabase, error) {
			db := &dtwDatabase{signatures: make(map[string][]*mat.Dense)}
			keys := id.w.scaleKeys()
			byIdentity := split.DatabaseByIdentity()
			for _, identity := range split.Identities() {
				sigs, err := id.signatures(byIdentity[identity], keys)
				if err != nil {
					id.logger.Warn("identity has no usable database signatures",
						logging.String("identity", identity), logging.Error(err))
					continue
				}
				db.identities = append(db.identities, identity)
				db.signatures[identity] = sigs
			}
			if len(db.identities) == 0 {
				return nil, services.Wrap(services.ErrNoReferenceData, StageDTWIdentify, "load database", "no identity has usable signatures", nil)
			}
			return db, nil
		})
		id.dtw[split.Run] = load
	}
	return load
}

func (id *Identifier) index(ctx context.Context, split dataset.Split) func() (*ann.Indexes, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	load, ok := id.indexes[split.Run]
	if !ok {
		load = sync.OnceValues(func() (*ann.Indexes, error) {
			stage := id.w.descriptorStage()
			keys := id.w.descriptorKeys()
			var refs []ann.Reference
			for _, enc := range split.Database {
				for _, item := range enc.Items {
					desc, err := id.w.ReadDescriptor(stage, item, keys)
					if err != nil {
						id.logger.Debug("reference image skipped", logging.Item(item), logging.Error(err))
						continue
					}
					refs = append(refs, ann.Reference{Identity: enc.Individual, Descriptor: desc})
				}
			}
			return ann.Build(ctx, refs, id.w.annOptions(), id.logger)
		})
		id.indexes[split.Run] = load
	}
	return load
}
