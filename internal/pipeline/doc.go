// Package pipeline schedules named stages over a keyed item set.
//
// A Graph holds explicitly registered Stage values; Resolve orders them so
// every stage runs after its upstream stages. For each stage the Scheduler:
//   - checks completeness per item against the artifact store, where a
//     failure marker or the full set of expected sub-keys means complete,
//   - hands only the missing sub-keys of incomplete items to Compute,
//   - runs CPU stages on a bounded worker pool and GPU stages serially in
//     fixed-size, zero-padded batches,
//   - isolates per-item errors and panics as failure markers so one bad
//     item never aborts a batch.
//
// Artifact presence is the only completion record, so an interrupted run
// resumes by recomputing exactly what is missing. Errors classified as fatal
// by services.IsFatal abort the whole run.
package pipeline
