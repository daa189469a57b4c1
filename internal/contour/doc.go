// Package contour holds the outline and trailing-edge types exchanged with
// the upstream extraction collaborator.
//
// Outlines arrive as JSON files written by the extraction step. LoadOutline
// reads one, and Outline.TrailingEdge slices the sub-sequence between the
// two keypoint indices that the rest of the pipeline consumes. A failed or
// missing extraction surfaces as services.ErrExtraction so the scheduler can
// record a failure marker instead of computing on absent data.
package contour
