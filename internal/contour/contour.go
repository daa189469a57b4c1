package contour

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"curvrank/internal/services"
)

// Point is a contour sample in image coordinates.
type Point struct {
	Row float64
	Col float64
}

// Edge is an ordered run of contour points. A trailing edge always has at
// least two points.
type Edge []Point

// Outline is the extraction collaborator's output for one item.
type Outline struct {
	Success bool
	Points  []Point
	Start   int
	End     int
}

type outlineFile struct {
	Success bool         `json:"success"`
	Points  [][2]float64 `json:"points"`
	Start   int          `json:"start"`
	End     int          `json:"end"`
}

// LoadOutline reads an outline JSON file. A missing file is reported as an
// extraction failure rather than an I/O error.
func LoadOutline(path string) (Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Outline{}, services.Wrap(services.ErrExtraction, "trailing_edge", "load outline", "outline file missing", err)
		}
		return Outline{}, fmt.Errorf("read outline: %w", err)
	}
	var raw outlineFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Outline{}, services.Wrap(services.ErrExtraction, "trailing_edge", "decode outline", path, err)
	}
	out := Outline{Success: raw.Success, Start: raw.Start, End: raw.End}
	out.Points = make([]Point, len(raw.Points))
	for i, p := range raw.Points {
		out.Points[i] = Point{Row: p[0], Col: p[1]}
	}
	return out, nil
}

// WriteOutline encodes an outline in the collaborator JSON format.
func WriteOutline(path string, outline Outline) error {
	raw := outlineFile{Success: outline.Success, Start: outline.Start, End: outline.End}
	raw.Points = make([][2]float64, len(outline.Points))
	for i, p := range outline.Points {
		raw.Points[i] = [2]float64{p.Row, p.Col}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// TrailingEdge returns the points between Start and End inclusive. When End
// precedes Start the edge is walked in reverse so it always runs from the
// start keypoint to the end keypoint.
func (o Outline) TrailingEdge() (Edge, error) {
	if !o.Success || len(o.Points) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "trailing_edge", "slice", "outline extraction failed", nil)
	}
	n := len(o.Points)
	if o.Start < 0 || o.Start >= n || o.End < 0 || o.End >= n {
		return nil, services.Wrap(services.ErrExtraction, "trailing_edge", "slice",
			fmt.Sprintf("keypoints (%d, %d) outside outline of %d points", o.Start, o.End, n), nil)
	}
	var edge Edge
	if o.Start <= o.End {
		edge = append(Edge(nil), o.Points[o.Start:o.End+1]...)
	} else {
		edge = make(Edge, 0, o.Start-o.End+1)
		for i := o.Start; i >= o.End; i-- {
			edge = append(edge, o.Points[i])
		}
	}
	if len(edge) < 2 {
		return nil, services.Wrap(services.ErrInsufficientData, "trailing_edge", "slice",
			fmt.Sprintf("trailing edge has %d points", len(edge)), nil)
	}
	return edge, nil
}

// Transpose swaps the row and column axes.
func (e Edge) Transpose() Edge {
	out := make(Edge, len(e))
	for i, p := range e {
		out[i] = Point{Row: p.Col, Col: p.Row}
	}
	return out
}

// Extent returns the bounding-box height and width.
func (e Edge) Extent() (height, width float64) {
	if len(e) == 0 {
		return 0, 0
	}
	minR, maxR := e[0].Row, e[0].Row
	minC, maxC := e[0].Col, e[0].Col
	for _, p := range e[1:] {
		minR, maxR = math.Min(minR, p.Row), math.Max(maxR, p.Row)
		minC, maxC = math.Min(minC, p.Col), math.Max(maxC, p.Col)
	}
	return maxR - minR, maxC - minC
}

// ArcLength returns the cumulative arc length at every point, starting at 0.
func (e Edge) ArcLength() []float64 {
	out := make([]float64, len(e))
	for i := 1; i < len(e); i++ {
		out[i] = out[i-1] + Distance(e[i-1], e[i])
	}
	return out
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.Row-b.Row, a.Col-b.Col)
}
