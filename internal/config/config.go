package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and input file locations.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	CatalogPath  string `toml:"catalog_path"`
	OutlineDir   string `toml:"outline_dir"`
	MaskDir      string `toml:"mask_dir"`
	LogDir       string `toml:"log_dir"`
}

// Curvature contains the multi-scale curvature settings.
type Curvature struct {
	// Scales are fractions of the edge's characteristic dimension used as
	// neighbourhood radii.
	Scales        []float64 `toml:"scales"`
	TransposeDims bool      `toml:"transpose_dims"`
}

// Descriptors contains settings for the keypoint-local descriptor encoders.
type Descriptors struct {
	// Type selects the descriptor family used for identification: "curv" or "gauss".
	Type          string    `toml:"type"`
	CurvLength    int       `toml:"curv_length"`
	ContourLength int       `toml:"contour_length"`
	NumKeypoints  int       `toml:"num_keypoints"`
	FeatDim       int       `toml:"feat_dim"`
	Uniform       bool      `toml:"uniform"`
	GaussM        []int     `toml:"gauss_m"`
	GaussS        []float64 `toml:"gauss_s"`
}

// DTW contains the time-warping alignment settings.
type DTW struct {
	CurvLength     int    `toml:"curv_length"`
	Window         int    `toml:"window"`
	Cost           string `toml:"cost"`
	SpatialWeights bool   `toml:"spatial_weights"`
	// WeightPreset names a shipped coefficient set; WeightCoefficients wins when set.
	WeightPreset       string    `toml:"weight_preset"`
	WeightCoefficients []float64 `toml:"weight_coefficients"`
}

// Identification contains the settings shared by both identification methods.
type Identification struct {
	Methods     []string `toml:"methods"`
	K           int      `toml:"k"`
	Index       string   `toml:"index"`
	Aggregation string   `toml:"aggregation"`
	HNSWM       int      `toml:"hnsw_m"`
	HNSWEF      int      `toml:"hnsw_ef"`
}

// Evaluation contains database/query split settings.
type Evaluation struct {
	Runs            int   `toml:"runs"`
	NumDBEncounters int   `toml:"num_db_encounters"`
	Seed            int64 `toml:"seed"`
}

// Workers contains scheduler concurrency settings.
type Workers struct {
	// PoolSize bounds concurrent CPU items; 0 selects GOMAXPROCS.
	PoolSize     int `toml:"pool_size"`
	GPUBatchSize int `toml:"gpu_batch_size"`
}

// Artifacts contains artifact store settings.
type Artifacts struct {
	Compression string `toml:"compression"`
	MinFreeMiB  int    `toml:"min_free_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for curvrank.
//
// Configuration sections by subsystem:
//   - Paths: workspace, catalog, and collaborator input locations
//   - Curvature: scale set and axis order
//   - Descriptors: keypoint descriptor family and shape
//   - DTW: resample length, band width, cost, and spatial weights
//   - Identification: methods, neighbour count, and index backend
//   - Evaluation: number of database/query splits
//   - Workers: CPU pool size and GPU batch size
//   - Artifacts: on-disk compression and free space floor
//   - Logging: log format and level
type Config struct {
	Paths          Paths          `toml:"paths"`
	Curvature      Curvature      `toml:"curvature"`
	Descriptors    Descriptors    `toml:"descriptors"`
	DTW            DTW            `toml:"dtw"`
	Identification Identification `toml:"identification"`
	Evaluation     Evaluation     `toml:"evaluation"`
	Workers        Workers        `toml:"workers"`
	Artifacts      Artifacts      `toml:"artifacts"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/curvrank/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curvrank.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the workspace and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ArtifactDir returns the root of the per-stage artifact store.
func (c *Config) ArtifactDir() string {
	return filepath.Join(c.Paths.WorkspaceDir, "artifacts")
}

// ResultsDir returns the directory that receives evaluation reports.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.Paths.WorkspaceDir, "results")
}

// LedgerPath returns the sqlite run ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "ledger.db")
}

// LockPath returns the workspace lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "curvrank.lock")
}

// Coefficients returns the Bernstein coefficients used for spatial weighting,
// or nil when weighting is disabled.
func (c *Config) Coefficients() []float64 {
	if !c.DTW.SpatialWeights {
		return nil
	}
	if len(c.DTW.WeightCoefficients) > 0 {
		return append([]float64(nil), c.DTW.WeightCoefficients...)
	}
	return append([]float64(nil), WeightPresets[c.DTW.WeightPreset]...)
}

var fingerprintNamespace = uuid.MustParse("5b0f7c3e-9d1a-4c55-8e2f-6a7d3c1b9e40")

// Fingerprint derives a stable identifier from the TOML encoding of the
// supplied configuration sections. Artifacts are stored under the
// fingerprint so a changed option never reuses stale results.
func Fingerprint(sections ...any) (string, error) {
	var b strings.Builder
	for _, section := range sections {
		data, err := toml.Marshal(section)
		if err != nil {
			return "", fmt.Errorf("fingerprint config: %w", err)
		}
		b.Write(data)
		b.WriteByte(0)
	}
	id := uuid.NewSHA1(fingerprintNamespace, []byte(b.String()))
	return strings.ReplaceAll(id.String(), "-", "")[:12], nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
