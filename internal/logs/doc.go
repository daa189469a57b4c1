// Package logs reads curvrank.log for the `curvrank logs` command.
//
// Tail returns the last N lines that match a Filter and the offset after
// them; Follow polls from that offset and emits matching lines as they are
// appended. Both understand the console and JSON handler formats.
package logs
