package contour

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"curvrank/internal/services"
)

func TestLoadOutlineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	want := Outline{Success: true, Start: 1, End: 3, Points: []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}}
	if err := WriteOutline(path, want); err != nil {
		t.Fatalf("WriteOutline: %v", err)
	}
	got, err := LoadOutline(path)
	if err != nil {
		t.Fatalf("LoadOutline: %v", err)
	}
	if !got.Success || got.Start != 1 || got.End != 3 || len(got.Points) != 5 {
		t.Fatalf("unexpected outline %+v", got)
	}
	edge, err := got.TrailingEdge()
	if err != nil {
		t.Fatalf("TrailingEdge: %v", err)
	}
	if len(edge) != 3 || edge[0] != (Point{1, 1}) || edge[2] != (Point{3, 3}) {
		t.Fatalf("unexpected edge %v", edge)
	}
}

func TestLoadOutlineMissingIsExtractionFailure(t *testing.T) {
	_, err := LoadOutline(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}

func TestTrailingEdgeFailures(t *testing.T) {
	pts := []Point{{0, 0}, {1, 0}, {2, 0}}
	cases := []struct {
		name    string
		outline Outline
		want    error
	}{
		{"unsuccessful", Outline{Success: false, Points: pts}, services.ErrExtraction},
		{"out of range", Outline{Success: true, Points: pts, Start: 0, End: 5}, services.ErrExtraction},
		{"single point", Outline{Success: true, Points: pts, Start: 1, End: 1}, services.ErrInsufficientData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.outline.TrailingEdge(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTrailingEdgeReversed(t *testing.T) {
	o := Outline{Success: true, Points: []Point{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, Start: 3, End: 1}
	edge, err := o.TrailingEdge()
	if err != nil {
		t.Fatalf("TrailingEdge: %v", err)
	}
	if len(edge) != 3 || edge[0].Row != 3 || edge[2].Row != 1 {
		t.Fatalf("unexpected reversed edge %v", edge)
	}
}

func TestEdgeGeometry(t *testing.T) {
	e := Edge{{0, 0}, {3, 4}, {3, 10}}
	h, w := e.Extent()
	if h != 3 || w != 10 {
		t.Fatalf("unexpected extent %v x %v", h, w)
	}
	arc := e.ArcLength()
	if arc[0] != 0 || arc[1] != 5 || arc[2] != 11 {
		t.Fatalf("unexpected arc length %v", arc)
	}
	tr := e.Transpose()
	if tr[1] != (Point{Row: 4, Col: 3}) {
		t.Fatalf("unexpected transpose %v", tr)
	}
	if d := Distance(Point{0, 0}, Point{1, 1}); math.Abs(d-math.Sqrt2) > 1e-12 {
		t.Fatalf("unexpected distance %v", d)
	}
}
