// Package preflight provides readiness checks for the filesystem paths a
// run depends on.
//
// The workflow runner calls RunAll before scheduling any stage; a failed
// check aborts the run before hours of batch work are spent on a workspace
// that cannot hold the results. The CLI status command renders the same
// results.
package preflight
