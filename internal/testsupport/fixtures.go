package testsupport

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curvrank/internal/config"
	"curvrank/internal/contour"
)

// Image describes one synthetic catalog row.
type Image struct {
	Item       string
	Individual string
	Encounter  string
	// Broken writes an outline the extractor flagged as unsuccessful.
	Broken bool
}

// Fin returns a synthetic trailing-edge outline for an individual. Each
// individual bends at its own frequencies; variant adds a small
// deterministic perturbation standing in for a different photograph.
func Fin(individual, variant int) contour.Outline {
	const n = 120
	rng := rand.New(rand.NewPCG(uint64(individual+1), uint64(variant+1)))
	freq := 1.5 + float64(individual)
	phase := 0.7 * float64(individual)
	points := make([]contour.Point, n)
	for i := range points {
		t := float64(i) / float64(n-1)
		col := 18*math.Sin(2*math.Pi*freq*t+phase) + 6*math.Sin(2*math.Pi*(freq+2)*t)
		points[i] = contour.Point{
			Row: 200 * t,
			Col: 50 + col + 0.3*rng.NormFloat64(),
		}
	}
	return contour.Outline{Success: true, Points: points, Start: 0, End: n - 1}
}

// Dataset returns images for individuals x encounters with one image per
// encounter, item ids "i<individual>e<encounter>".
func Dataset(individuals, encounters int) []Image {
	var out []Image
	for i := range individuals {
		for e := range encounters {
			out = append(out, Image{
				Item:       fmt.Sprintf("i%de%d", i, e),
				Individual: fmt.Sprintf("ind-%d", i),
				Encounter:  fmt.Sprintf("enc-%d-%d", i, e),
			})
		}
	}
	return out
}

// WriteDataset writes one outline per image into the configured outline
// directory and the catalog naming them. Masks are written too when a mask
// directory is configured.
func WriteDataset(t testing.TB, cfg *config.Config, images []Image) {
	t.Helper()
	var catalog strings.Builder
	catalog.WriteString("path,individual,encounter\n")
	for idx, img := range images {
		var individual, variant int
		if _, err := fmt.Sscanf(img.Item, "i%de%d", &individual, &variant); err != nil {
			individual, variant = idx, 0
		}
		outline := Fin(individual, variant)
		if img.Broken {
			outline = contour.Outline{Success: false}
		}
		if err := contour.WriteOutline(filepath.Join(cfg.Paths.OutlineDir, img.Item+".json"), outline); err != nil {
			t.Fatalf("write outline %s: %v", img.Item, err)
		}
		if cfg.Paths.MaskDir != "" {
			if err := os.WriteFile(filepath.Join(cfg.Paths.MaskDir, img.Item+".mask"), []byte("mask:"+img.Item), 0o644); err != nil {
				t.Fatalf("write mask %s: %v", img.Item, err)
			}
		}
		fmt.Fprintf(&catalog, "images/%s.png,%s,%s\n", img.Item, img.Individual, img.Encounter)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.CatalogPath), 0o755); err != nil {
		t.Fatalf("mkdir catalog dir: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.CatalogPath, []byte(catalog.String()), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}
