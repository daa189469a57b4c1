// Package ann builds per-key nearest-neighbour indexes over reference
// descriptors and turns neighbour lists into identity scores.
//
// Every descriptor key (a curvature scale or Gaussian kernel pair) gets its
// own index over all reference rows, labelled with the owning identity.
// Indexes are built concurrently, one goroutine per key. Two backends are
// available: a hierarchical navigable small world graph (approximate, the
// default) and a gonum k-d tree (exact).
//
// Scores follow local naive-Bayes nearest neighbour voting: each query row
// looks up k+1 neighbours and every distinct identity among the first k
// earns the gap between its nearest distance and the (k+1)-th distance.
package ann
