// Package ranking orders candidate identities for each query encounter and
// summarises identification accuracy.
//
// Rank sorts one query's per-identity scores and records where the true
// identity landed. Evaluate folds many results into mean reciprocal rank
// per identity and top-k accuracy for every k up to the number of reference
// identities. WriteReports and WriteAggregate persist both as CSV files.
//
// Ties keep the order in which identities were supplied; callers that need
// deterministic output pass scores in a stable identity order.
package ranking
