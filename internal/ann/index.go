package ann

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"curvrank/internal/descriptor"
	"curvrank/internal/logging"
	"curvrank/internal/services"
)

// Neighbor is one search hit.
type Neighbor struct {
	Row      int
	Distance float64
}

// Searcher is a built nearest-neighbour index.
type Searcher interface {
	Search(q []float64, k int) []Neighbor
	Len() int
}

// Options selects and tunes the index backend.
type Options struct {
	// Backend is "hnsw" or "kdtree".
	Backend string
	HNSW    HNSWOptions
	// Concurrency bounds simultaneous key builds; 0 means one per key.
	Concurrency int
}

// Reference is one reference image's descriptor and its identity.
type Reference struct {
	Identity   string
	Descriptor descriptor.Descriptor
}

// KeyIndex is the index for one descriptor key.
type KeyIndex struct {
	Key      string
	Dim      int
	Labels   []string
	Searcher Searcher
}

// Indexes holds one index per descriptor key. Keys whose build failed are
// listed in Excluded and contribute no score.
type Indexes struct {
	Keys       []string
	ByKey      map[string]*KeyIndex
	Excluded   map[string]error
	Identities []string
}

// Build stacks every reference row per key and builds the per-key indexes
// concurrently. All references must share one key set.
func Build(ctx context.Context, refs []Reference, opts Options, logger *slog.Logger) (*Indexes, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrNoReferenceData, "identify", "build index", "no reference descriptors", nil)
	}
	keys := refs[0].Descriptor.Keys()
	seen := make(map[string]struct{})
	var identities []string
	for _, r := range refs {
		if !descriptor.SameKeys(refs[0].Descriptor, r.Descriptor) {
			return nil, services.Wrap(services.ErrConfigurationMismatch, "identify", "build index",
				fmt.Sprintf("reference %s has keys %v, expected %v", r.Identity, r.Descriptor.Keys(), keys), nil)
		}
		if _, ok := seen[r.Identity]; !ok {
			seen[r.Identity] = struct{}{}
			identities = append(identities, r.Identity)
		}
	}

	idx := &Indexes{
		Keys:       keys,
		ByKey:      make(map[string]*KeyIndex, len(keys)),
		Excluded:   make(map[string]error),
		Identities: identities,
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for _, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ki, err := buildKey(key, refs, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				idx.Excluded[key] = err
				logging.WarnWithContext(logger, "index build failed; key excluded from scoring", "index_build_failed",
					logging.String("key", key),
					logging.Error(err),
					logging.String(logging.FieldImpact, "key contributes no score"),
				)
				return nil
			}
			idx.ByKey[key] = ki
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(idx.ByKey) == 0 {
		return nil, services.Wrap(services.ErrNoReferenceData, "identify", "build index",
			fmt.Sprintf("all %d keys failed to build", len(keys)), nil)
	}
	logger.Debug("indexes built",
		logging.Int("keys", len(idx.ByKey)),
		logging.Int("excluded", len(idx.Excluded)),
		logging.Int("identities", len(identities)),
	)
	return idx, nil
}

func buildKey(key string, refs []Reference, opts Options) (*KeyIndex, error) {
	var rows [][]float64
	var labels []string
	dim := -1
	for _, r := range refs {
		m := r.Descriptor[key]
		if m == nil {
			continue
		}
		nr, nc := m.Dims()
		if dim == -1 {
			dim = nc
		} else if nc != dim {
			return nil, services.Wrap(services.ErrIndexBuild, "identify", "build index",
				fmt.Sprintf("key %s: row width %d, expected %d", key, nc, dim), nil)
		}
		for i := range nr {
			rows = append(rows, m.RawRowView(i))
			labels = append(labels, r.Identity)
		}
	}
	if len(rows) == 0 {
		return nil, services.Wrap(services.ErrIndexBuild, "identify", "build index",
			fmt.Sprintf("key %s has no reference rows", key), nil)
	}

	var searcher Searcher
	switch opts.Backend {
	case "", "hnsw":
		h := NewHNSW(dim, opts.HNSW)
		for _, row := range rows {
			if _, err := h.Insert(row); err != nil {
				return nil, services.Wrap(services.ErrIndexBuild, "identify", "build index", key, err)
			}
		}
		searcher = h
	case "kdtree":
		searcher = NewKDTree(rows)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "identify", "build index",
			fmt.Sprintf("unknown backend %q", opts.Backend), nil)
	}
	return &KeyIndex{Key: key, Dim: dim, Labels: labels, Searcher: searcher}, nil
}
