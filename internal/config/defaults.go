package config

const (
	defaultWorkspaceDir      = "~/.local/share/curvrank/workspace"
	defaultLogDir            = "~/.local/share/curvrank/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultDescriptorType    = "curv"
	defaultDescriptorLength  = 1024
	defaultNumKeypoints      = 32
	defaultFeatDim           = 32
	defaultDTWLength         = 128
	defaultDTWWindow         = 8
	defaultDTWCost           = "l2"
	defaultWeightPreset      = "sdrp"
	defaultK                 = 3
	defaultIndex             = "hnsw"
	defaultAggregation       = "lnbnn"
	defaultHNSWM             = 16
	defaultHNSWEF            = 200
	defaultRuns              = 1
	defaultNumDBEncounters   = 10
	defaultSeed              = 1
	defaultGPUBatchSize      = 32
	defaultCompression       = "lz4"
	defaultMinFreeMiB        = 256
	defaultMaxGaussianDerivs = 4
)

// WeightPresets holds dataset-fitted Bernstein coefficients for spatial
// weighting. They are treated as opaque constants.
var WeightPresets = map[string][]float64{
	"sdrp": {0.0960, 0.6537, 1.0000, 0.7943, 1.0000, 0.3584, 0.4492, 0.0000, 0.4157, 0.0626},
	"nz":   {0.0960, 0.6537, 1.0000, 0.7943, 1.0000, 0.3584, 0.4492, 0.0000, 0.4157, 0.0626},
	"crc":  {0.0944, 0.5629, 0.7286, 0.6028, 0.0000, 0.0434, 0.6906, 0.7316, 0.4671, 0.0258},
	"fb":   {0.0944, 0.5629, 0.7286, 0.6028, 0.0000, 0.0434, 0.6906, 0.7316, 0.4671, 0.0258},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
		},
		Curvature: Curvature{
			Scales: []float64{0.04, 0.06, 0.08, 0.10},
		},
		Descriptors: Descriptors{
			Type:          defaultDescriptorType,
			CurvLength:    defaultDescriptorLength,
			ContourLength: defaultDescriptorLength,
			NumKeypoints:  defaultNumKeypoints,
			FeatDim:       defaultFeatDim,
			GaussM:        []int{2, 2, 2, 2},
			GaussS:        []float64{1, 2, 4, 8},
		},
		DTW: DTW{
			CurvLength:   defaultDTWLength,
			Window:       defaultDTWWindow,
			Cost:         defaultDTWCost,
			WeightPreset: defaultWeightPreset,
		},
		Identification: Identification{
			Methods:     []string{"dtw", "descriptors"},
			K:           defaultK,
			Index:       defaultIndex,
			Aggregation: defaultAggregation,
			HNSWM:       defaultHNSWM,
			HNSWEF:      defaultHNSWEF,
		},
		Evaluation: Evaluation{
			Runs:            defaultRuns,
			NumDBEncounters: defaultNumDBEncounters,
			Seed:            defaultSeed,
		},
		Workers: Workers{
			GPUBatchSize: defaultGPUBatchSize,
		},
		Artifacts: Artifacts{
			Compression: defaultCompression,
			MinFreeMiB:  defaultMinFreeMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
