// Package segment feeds collaborator-supplied segmentation masks through
// the pipeline's batched device path. Masks are opaque: they are loaded and
// persisted byte for byte so that later stages and audits see exactly what
// the segmentation model produced.
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"curvrank/internal/dataset"
	"curvrank/internal/pipeline"
)

// Mask is one item's segmentation output.
type Mask struct {
	Item   string
	Source string
	Data   []byte
}

// Loader resolves masks by item id from a directory listing taken once.
// An empty directory means segmentation is not supplied and every item
// passes with an empty mask.
type Loader struct {
	dir   string
	index map[string]string
}

// NewLoader indexes every regular file in dir by its file stem.
func NewLoader(dir string) (*Loader, error) {
	l := &Loader{dir: strings.TrimSpace(dir), index: make(map[string]string)}
	if l.dir == "" {
		return l, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list mask directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		stem := dataset.ItemID(entry.Name())
		if _, dup := l.index[stem]; dup {
			continue
		}
		l.index[stem] = filepath.Join(l.dir, entry.Name())
	}
	return l, nil
}

// Enabled reports whether masks are supplied at all.
func (l *Loader) Enabled() bool { return l.dir != "" }

// Load returns one item's mask.
func (l *Loader) Load(item string) (Mask, error) {
	if !l.Enabled() {
		return Mask{Item: item}, nil
	}
	path, ok := l.index[item]
	if !ok {
		return Mask{}, fmt.Errorf("no mask for %s in %s", item, l.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Mask{}, fmt.Errorf("read mask: %w", err)
	}
	if len(data) == 0 {
		return Mask{}, fmt.Errorf("mask %s is empty", path)
	}
	return Mask{Item: item, Source: path, Data: data}, nil
}

// Batch is a pipeline.BatchFunc. Padding slots (empty item ids) yield empty
// successes that the scheduler discards.
func (l *Loader) Batch(ctx context.Context, items []string) ([]pipeline.Result[pipeline.Outputs], error) {
	out := make([]pipeline.Result[pipeline.Outputs], len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item == "" {
			out[i] = pipeline.Ok(pipeline.Outputs{})
			continue
		}
		mask, err := l.Load(item)
		if err != nil {
			out[i] = pipeline.Failed[pipeline.Outputs](err.Error())
			continue
		}
		out[i] = pipeline.Ok(pipeline.Outputs{pipeline.DefaultSubKey: mask})
	}
	return out, nil
}
