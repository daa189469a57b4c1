package dataset

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"curvrank/internal/fileutil"
	"curvrank/internal/services"
)

// SplitOptions controls database/query separation.
type SplitOptions struct {
	// NumDatabase caps the encounters per individual placed in the database.
	NumDatabase int
	Seed        int64
	Run         int
}

// Split is one database/query separation.
type Split struct {
	Run         int         `toml:"run"`
	Seed        int64       `toml:"seed"`
	NumDatabase int         `toml:"num_db_encounters"`
	Database    []Encounter `toml:"database"`
	Queries     []Encounter `toml:"queries"`
}

// Separate shuffles each individual's encounters with a generator seeded
// from Seed and Run, places the first min(n-1, NumDatabase) in the database
// and the rest in the query set. Individuals with a single encounter are
// database-only. keep filters items (for example to those with an
// extracted trailing edge); encounters left empty are dropped. A nil keep
// retains every item.
func Separate(encounters []Encounter, opts SplitOptions, keep func(item string) bool) Split {
	split := Split{Run: opts.Run, Seed: opts.Seed, NumDatabase: max(1, opts.NumDatabase)}

	byIndividual := make(map[string][]Encounter)
	var individuals []string
	for _, enc := range encounters {
		items := enc.Items
		if keep != nil {
			items = slices.DeleteFunc(slices.Clone(enc.Items), func(item string) bool { return !keep(item) })
		}
		if len(items) == 0 {
			continue
		}
		if _, seen := byIndividual[enc.Individual]; !seen {
			individuals = append(individuals, enc.Individual)
		}
		byIndividual[enc.Individual] = append(byIndividual[enc.Individual],
			Encounter{ID: enc.ID, Individual: enc.Individual, Items: items})
	}
	slices.Sort(individuals)

	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Run)))
	for _, individual := range individuals {
		encs := byIndividual[individual]
		slices.SortFunc(encs, func(a, b Encounter) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		rng.Shuffle(len(encs), func(i, j int) { encs[i], encs[j] = encs[j], encs[i] })

		numDB := min(len(encs)-1, split.NumDatabase)
		if len(encs) == 1 {
			numDB = 1
		}
		split.Database = append(split.Database, encs[:numDB]...)
		split.Queries = append(split.Queries, encs[numDB:]...)
	}
	return split
}

// Identities lists the individuals present in the database, sorted.
func (s Split) Identities() []string {
	var out []string
	for _, enc := range s.Database {
		if !slices.Contains(out, enc.Individual) {
			out = append(out, enc.Individual)
		}
	}
	slices.Sort(out)
	return out
}

// DatabaseByIdentity maps each identity to its database items.
func (s Split) DatabaseByIdentity() map[string][]string {
	out := make(map[string][]string)
	for _, enc := range s.Database {
		out[enc.Individual] = append(out[enc.Individual], enc.Items...)
	}
	return out
}

// Query returns a query encounter by its Key.
func (s Split) Query(key string) (Encounter, bool) {
	for _, enc := range s.Queries {
		if enc.Key() == key {
			return enc, true
		}
	}
	return Encounter{}, false
}

// SplitPath is the file holding the split for run inside dir.
func SplitPath(dir string, run int) string {
	return filepath.Join(dir, fmt.Sprintf("split-%02d.toml", run))
}

// WriteSplit persists a split as TOML.
func WriteSplit(path string, split Split) error {
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return toml.NewEncoder(w).Encode(split)
	})
}

// LoadSplit reads a split written by WriteSplit.
func LoadSplit(path string) (Split, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Split{}, services.Wrap(services.ErrNotFound, "split", "load", path, err)
		}
		return Split{}, fmt.Errorf("read split: %w", err)
	}
	var split Split
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&split); err != nil {
		return Split{}, services.Wrap(services.ErrValidation, "split", "decode", path, err)
	}
	return split, nil
}
