// Package ledger records pipeline runs in a SQLite database: when each run
// started and finished, how it ended, the per-stage item counts and the
// top-k accuracy of every evaluated split. The CLI status command reads it
// back.
package ledger
