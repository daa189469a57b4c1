package pipeline

import (
	"context"
	"fmt"
)

// Device selects how a stage's items are executed.
type Device int

const (
	// CPU stages run items concurrently on the worker pool.
	CPU Device = iota
	// GPU stages run fixed-size batches serially on one goroutine.
	GPU
)

func (d Device) String() string {
	if d == GPU {
		return "gpu"
	}
	return "cpu"
}

// DefaultSubKey is used by stages that store a single artifact per item.
const DefaultSubKey = "result"

// Outputs maps sub-keys to the values to persist for one item.
type Outputs map[string]any

// ComputeFunc produces the missing sub-keys of one item.
type ComputeFunc func(ctx context.Context, item string, missing []string) (Outputs, error)

// BatchFunc produces outputs for a batch. Padding slots hold the empty item
// key and their results are discarded. The returned slice must have one
// entry per batch slot.
type BatchFunc func(ctx context.Context, items []string) ([]Result[Outputs], error)

// Stage describes one unit of the pipeline.
type Stage struct {
	Name     string
	Upstream []string
	Device   Device
	// Fingerprint identifies the configuration the stage's artifacts were
	// produced under.
	Fingerprint string
	// SubKeys lists the artifacts every item must hold. Empty means a single
	// DefaultSubKey artifact.
	SubKeys []string
	// Items overrides the run's item universe for this stage. Upstream
	// failure markers are only propagated between stages that share the
	// run universe.
	Items func(ctx context.Context) ([]string, error)

	Compute      ComputeFunc
	ComputeBatch BatchFunc
}

// ExpectedSubKeys returns the sub-keys an item needs to be complete.
func (s *Stage) ExpectedSubKeys() []string {
	if len(s.SubKeys) == 0 {
		return []string{DefaultSubKey}
	}
	return s.SubKeys
}

func (s *Stage) validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	if s.Fingerprint == "" {
		return fmt.Errorf("stage %s: fingerprint is required", s.Name)
	}
	switch s.Device {
	case CPU:
		if s.Compute == nil {
			return fmt.Errorf("stage %s: cpu stage needs Compute", s.Name)
		}
	case GPU:
		if s.ComputeBatch == nil {
			return fmt.Errorf("stage %s: gpu stage needs ComputeBatch", s.Name)
		}
	default:
		return fmt.Errorf("stage %s: unknown device %d", s.Name, s.Device)
	}
	return nil
}

func (s *Stage) sharesUniverse() bool {
	return s.Items == nil
}
