// Package services defines shared utilities consumed by the pipeline stages
// and identification engines.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and item keys for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that separate per-item
//     recoverable failures from fatal configuration-level failures.
//
// Use these helpers when wiring new stage logic so failure handling and
// observability stay uniform across the pipeline.
package services
