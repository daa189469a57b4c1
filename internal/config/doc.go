// Package config loads, normalizes, and validates curvrank configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and derives configuration fingerprints that
// key every persisted artifact. The Config type centralizes every knob the
// pipeline and CLI need so they are validated once at construction and shared
// read-only for the duration of a run.
package config
