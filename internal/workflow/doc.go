// Package workflow assembles the identification pipeline from its parts.
//
// A Workflow registers the per-image stages (segmentation pass-through,
// trailing edge extraction, block curvature and the descriptor encoders)
// and the per-encounter identification stages into one pipeline graph. The
// identification stages take their item universe from the database/query
// splits, which are derived lazily once every trailing edge is known and
// persisted next to the reports.
//
// A Session owns the workspace for the length of one command: it holds the
// workspace lock, the artifact store and the run ledger, runs preflight
// checks, executes the graph and writes the evaluation reports. Status
// reads the same state without taking the lock.
package workflow
