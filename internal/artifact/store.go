// Package artifact persists per-(stage, item, sub-key) results under a
// configuration fingerprint.
//
// Layout: <root>/<stage>/<fingerprint>/<item>/<subkey>.bin. Each file is a
// gob payload behind a small header naming its compression. Writes go
// through a temporary file and a rename, so an artifact is either fully
// present or absent; presence alone marks work as done.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"curvrank/internal/fileutil"
	"curvrank/internal/services"
)

// FailureSubKey is the reserved sub-key holding an item's failure marker.
const FailureSubKey = "_failed"

const artifactExt = ".bin"

// Key addresses one artifact.
type Key struct {
	Stage       string
	Fingerprint string
	Item        string
	Sub         string
}

func (k Key) String() string {
	return k.Stage + "/" + k.Fingerprint + "/" + k.Item + "/" + k.Sub
}

// Failure is the payload of a failure marker.
type Failure struct {
	Reason string
}

// Store is a directory-backed artifact store. It is safe for concurrent use
// as long as no two callers write the same key.
type Store struct {
	root        string
	compression Compression
}

// Open prepares a store rooted at root.
func Open(root string, compression Compression) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root, compression: compression}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) itemDir(stage, fingerprint, item string) string {
	return filepath.Join(s.root, url.PathEscape(stage), url.PathEscape(fingerprint), url.PathEscape(item))
}

func (s *Store) path(k Key) string {
	return filepath.Join(s.itemDir(k.Stage, k.Fingerprint, k.Item), url.PathEscape(k.Sub)+artifactExt)
}

// Exists reports whether the artifact is present.
func (s *Store) Exists(k Key) bool {
	info, err := os.Stat(s.path(k))
	return err == nil && info.Mode().IsRegular()
}

// Read decodes the artifact into v. A missing artifact yields
// services.ErrNotFound.
func (s *Store) Read(k Key, v any) error {
	data, err := os.ReadFile(s.path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, k.Stage, "read artifact", k.String(), nil)
		}
		return fmt.Errorf("read artifact %s: %w", k, err)
	}
	if err := decode(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", k, err)
	}
	return nil
}

// Write encodes v and atomically replaces the artifact.
func (s *Store) Write(k Key, v any) error {
	data, err := encode(v, s.compression)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", k, err)
	}
	if err := fileutil.WriteFileAtomic(s.path(k), data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", k, err)
	}
	return nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (s *Store) Delete(k Key) error {
	if err := os.Remove(s.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact %s: %w", k, err)
	}
	return nil
}

// SubKeys lists the artifacts present for one item, excluding the failure
// marker, in sorted order.
func (s *Store) SubKeys(stage, fingerprint, item string) ([]string, error) {
	entries, err := os.ReadDir(s.itemDir(stage, fingerprint, item))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		sub, err := url.PathUnescape(strings.TrimSuffix(name, artifactExt))
		if err != nil || sub == FailureSubKey {
			continue
		}
		out = append(out, sub)
	}
	slices.Sort(out)
	return out, nil
}

// MarkFailed records a terminal failure for an item.
func (s *Store) MarkFailed(stage, fingerprint, item, reason string) error {
	return s.Write(Key{Stage: stage, Fingerprint: fingerprint, Item: item, Sub: FailureSubKey}, Failure{Reason: reason})
}

// Failed returns the recorded failure reason for an item, if any.
func (s *Store) Failed(stage, fingerprint, item string) (string, bool) {
	var f Failure
	if err := s.Read(Key{Stage: stage, Fingerprint: fingerprint, Item: item, Sub: FailureSubKey}, &f); err != nil {
		return "", false
	}
	return f.Reason, true
}

// FailureRecord describes one cached failure marker.
type FailureRecord struct {
	Stage       string
	Fingerprint string
	Item        string
	Reason      string
}

// Failures lists every failure marker, optionally restricted to one stage.
func (s *Store) Failures(stage string) ([]FailureRecord, error) {
	pattern := filepath.Join(s.root, "*", "*", "*", url.PathEscape(FailureSubKey)+artifactExt)
	if stage != "" {
		pattern = filepath.Join(s.root, url.PathEscape(stage), "*", "*", url.PathEscape(FailureSubKey)+artifactExt)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan failures: %w", err)
	}
	slices.Sort(matches)
	out := make([]FailureRecord, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(s.root, m)
		if err != nil {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 4 {
			continue
		}
		rec := FailureRecord{}
		rec.Stage, _ = url.PathUnescape(parts[0])
		rec.Fingerprint, _ = url.PathUnescape(parts[1])
		rec.Item, _ = url.PathUnescape(parts[2])
		rec.Reason, _ = s.Failed(rec.Stage, rec.Fingerprint, rec.Item)
		out = append(out, rec)
	}
	return out, nil
}

// ClearFailures deletes failure markers so the items are retried on the
// next run. It returns the number of markers removed.
func (s *Store) ClearFailures(stage string) (int, error) {
	records, err := s.Failures(stage)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := s.Delete(Key{Stage: r.Stage, Fingerprint: r.Fingerprint, Item: r.Item, Sub: FailureSubKey}); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}
