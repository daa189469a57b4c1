package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"curvrank/internal/artifact"
	"curvrank/internal/services"
)

// Entry is one catalogued image.
type Entry struct {
	Item       string
	Path       string
	Individual string
	Encounter  string
	Side       string
}

// Encounter groups the images of one sighting of one individual. ID is
// only unique within an individual; Key is unique across the catalog.
type Encounter struct {
	ID         string   `toml:"id"`
	Individual string   `toml:"individual"`
	Items      []string `toml:"items"`
}

// Key identifies the encounter across individuals.
func (e Encounter) Key() string {
	return artifact.ItemKey(e.Individual, e.ID)
}

// Catalog is the parsed image catalog, in file order.
type Catalog struct {
	Entries []Entry
	byItem  map[string]int
}

var requiredColumns = []string{"path", "individual", "encounter"}

// LoadCatalog reads a CSV catalog with a header naming at least the path,
// individual and encounter columns. Relative image paths resolve against
// the catalog's directory.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open", path, err)
	}
	defer f.Close()
	cat, err := ReadCatalog(f, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// ReadCatalog parses catalog rows from r; baseDir anchors relative paths.
func ReadCatalog(r io.Reader, baseDir string) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read header", "catalog is empty", nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read header", "malformed csv", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, services.Wrap(services.ErrValidation, "catalog", "read header", "missing column "+name, nil)
		}
	}
	sideCol, hasSide := columns["side"]

	cat := &Catalog{byItem: make(map[string]int)}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "catalog", "read row", fmt.Sprintf("line %d", line), err)
		}
		field := func(col int) string {
			if col >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[col])
		}
		entry := Entry{
			Path:       field(columns["path"]),
			Individual: field(columns["individual"]),
			Encounter:  field(columns["encounter"]),
		}
		if hasSide {
			entry.Side = field(sideCol)
		}
		if entry.Path == "" || entry.Individual == "" || entry.Encounter == "" {
			return nil, services.Wrap(services.ErrValidation, "catalog", "read row", fmt.Sprintf("line %d has empty fields", line), nil)
		}
		if !filepath.IsAbs(entry.Path) && baseDir != "" {
			entry.Path = filepath.Join(baseDir, entry.Path)
		}
		entry.Item = ItemID(entry.Path)
		if _, dup := cat.byItem[entry.Item]; dup {
			return nil, services.Wrap(services.ErrValidation, "catalog", "read row", fmt.Sprintf("line %d repeats item %s", line, entry.Item), nil)
		}
		cat.byItem[entry.Item] = len(cat.Entries)
		cat.Entries = append(cat.Entries, entry)
	}
	if len(cat.Entries) == 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read rows", "catalog has no images", nil)
	}
	return cat, nil
}

// ItemID derives the item identifier from an image path: its file stem.
func ItemID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Items returns every item id in catalog order.
func (c *Catalog) Items() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Item
	}
	return out
}

// Lookup returns the entry for an item id.
func (c *Catalog) Lookup(item string) (Entry, bool) {
	i, ok := c.byItem[item]
	if !ok {
		return Entry{}, false
	}
	return c.Entries[i], true
}

// Encounters groups entries by encounter, sorted by individual then id.
func (c *Catalog) Encounters() []Encounter {
	index := make(map[string]int)
	var out []Encounter
	for _, e := range c.Entries {
		enc := Encounter{ID: e.Encounter, Individual: e.Individual}
		i, ok := index[enc.Key()]
		if !ok {
			i = len(out)
			index[enc.Key()] = i
			out = append(out, enc)
		}
		out[i].Items = append(out[i].Items, e.Item)
	}
	slices.SortFunc(out, func(a, b Encounter) int {
		if n := strings.Compare(a.Individual, b.Individual); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Stats summarises a catalog.
type Stats struct {
	Images      int
	Individuals int
	Encounters  int
	// Singletons counts individuals seen in exactly one encounter; they
	// can never be queried.
	Singletons int
}

// Stats counts images, individuals and encounters.
func (c *Catalog) Stats() Stats {
	perIndividual := make(map[string]int)
	encounters := c.Encounters()
	for _, enc := range encounters {
		perIndividual[enc.Individual]++
	}
	st := Stats{Images: len(c.Entries), Individuals: len(perIndividual), Encounters: len(encounters)}
	for _, n := range perIndividual {
		if n == 1 {
			st.Singletons++
		}
	}
	return st
}
