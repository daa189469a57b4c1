package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"curvrank/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and shapes small enough for synthetic fixtures. Options are applied last.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "data", "catalog.csv")
	cfgVal.Paths.OutlineDir = filepath.Join(base, "data", "outlines")
	cfgVal.Curvature.Scales = []float64{0.05, 0.1}
	cfgVal.Descriptors.CurvLength = 64
	cfgVal.Descriptors.ContourLength = 64
	cfgVal.Descriptors.NumKeypoints = 8
	cfgVal.Descriptors.FeatDim = 8
	cfgVal.DTW.CurvLength = 32
	cfgVal.DTW.Window = 4
	cfgVal.Identification.K = 1
	cfgVal.Identification.HNSWEF = 32
	cfgVal.Evaluation.Runs = 2
	cfgVal.Evaluation.NumDBEncounters = 2
	cfgVal.Workers.PoolSize = 2
	cfgVal.Workers.GPUBatchSize = 4
	cfgVal.Artifacts.MinFreeMiB = 0
	cfgVal.Logging.Level = "error"

	if err := os.MkdirAll(cfgVal.Paths.OutlineDir, 0o755); err != nil {
		t.Fatalf("mkdir outline dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithMethods selects the identification methods.
func WithMethods(methods ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Identification.Methods = methods
	}
}

// WithDescriptorType selects the descriptor family, "curv" or "gauss".
func WithDescriptorType(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Descriptors.Type = kind
	}
}

// WithIndex selects the nearest-neighbour backend.
func WithIndex(index string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Identification.Index = index
	}
}

// WithMaskDir enables segmentation masks read from a fresh directory.
func WithMaskDir() ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "data", "masks")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir mask dir: %v", err)
		}
		b.cfg.Paths.MaskDir = dir
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
