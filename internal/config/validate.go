package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCurvature(); err != nil {
		return err
	}
	if err := c.validateDescriptors(); err != nil {
		return err
	}
	if err := c.validateDTW(); err != nil {
		return err
	}
	if err := c.validateIdentification(); err != nil {
		return err
	}
	if err := c.validateEvaluation(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateArtifacts(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCurvature() error {
	if len(c.Curvature.Scales) == 0 {
		return errors.New("curvature.scales must list at least one scale")
	}
	seen := make(map[string]struct{}, len(c.Curvature.Scales))
	for _, s := range c.Curvature.Scales {
		if s <= 0 || s > 1 {
			return fmt.Errorf("curvature.scales: %v must be in (0, 1]", s)
		}
		key := fmt.Sprintf("%.3f", s)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("curvature.scales: %s listed twice", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) validateDescriptors() error {
	d := c.Descriptors
	if d.Type != "curv" && d.Type != "gauss" {
		return fmt.Errorf("descriptors.type must be curv or gauss (got %q)", d.Type)
	}
	if d.CurvLength < 2 {
		return errors.New("descriptors.curv_length must be at least 2")
	}
	if d.ContourLength < 2 {
		return errors.New("descriptors.contour_length must be at least 2")
	}
	if d.NumKeypoints < 1 || d.NumKeypoints > d.CurvLength || d.NumKeypoints > d.ContourLength {
		return errors.New("descriptors.num_keypoints must be between 1 and the resample length")
	}
	if d.FeatDim < 1 {
		return errors.New("descriptors.feat_dim must be positive")
	}
	if len(d.GaussM) == 0 || len(d.GaussM) != len(d.GaussS) {
		return errors.New("descriptors.gauss_m and descriptors.gauss_s must be non-empty and equal length")
	}
	pairs := make(map[string]struct{}, len(d.GaussM))
	for i := range d.GaussM {
		pair := fmt.Sprintf("(%d, %g)", d.GaussM[i], d.GaussS[i])
		if _, dup := pairs[pair]; dup {
			return fmt.Errorf("descriptors.gauss_m/gauss_s: pair %s listed twice", pair)
		}
		pairs[pair] = struct{}{}
		if d.GaussM[i] < 0 || d.GaussM[i] > defaultMaxGaussianDerivs {
			return fmt.Errorf("descriptors.gauss_m: derivative order %d must be between 0 and %d", d.GaussM[i], defaultMaxGaussianDerivs)
		}
		if d.GaussS[i] <= 0 {
			return fmt.Errorf("descriptors.gauss_s: bandwidth %v must be positive", d.GaussS[i])
		}
	}
	return nil
}

func (c *Config) validateDTW() error {
	if c.DTW.CurvLength < 2 {
		return errors.New("dtw.curv_length must be at least 2")
	}
	if c.DTW.Window < 0 {
		return errors.New("dtw.window must be non-negative")
	}
	switch c.DTW.Cost {
	case "l1", "l2", "sqeuclidean":
	default:
		return fmt.Errorf("dtw.cost must be l1, l2, or sqeuclidean (got %q)", c.DTW.Cost)
	}
	if !c.DTW.SpatialWeights || len(c.DTW.WeightCoefficients) > 0 {
		return nil
	}
	if _, ok := WeightPresets[c.DTW.WeightPreset]; !ok {
		return fmt.Errorf("dtw.weight_preset %q is unknown; set dtw.weight_coefficients instead", c.DTW.WeightPreset)
	}
	return nil
}

func (c *Config) validateIdentification() error {
	id := c.Identification
	if len(id.Methods) == 0 {
		return errors.New("identification.methods must list dtw and/or descriptors")
	}
	for _, m := range id.Methods {
		if !slices.Contains([]string{"dtw", "descriptors"}, m) {
			return fmt.Errorf("identification.methods: unknown method %q", m)
		}
	}
	if id.K < 1 {
		return errors.New("identification.k must be positive")
	}
	if id.Index != "hnsw" && id.Index != "kdtree" {
		return fmt.Errorf("identification.index must be hnsw or kdtree (got %q)", id.Index)
	}
	if id.Aggregation != "lnbnn" && id.Aggregation != "inverse_distance" {
		return fmt.Errorf("identification.aggregation must be lnbnn or inverse_distance (got %q)", id.Aggregation)
	}
	if id.HNSWM < 2 {
		return errors.New("identification.hnsw_m must be at least 2")
	}
	if id.HNSWEF < 1 {
		return errors.New("identification.hnsw_ef must be positive")
	}
	return nil
}

func (c *Config) validateEvaluation() error {
	if c.Evaluation.Runs < 1 {
		return errors.New("evaluation.runs must be positive")
	}
	if c.Evaluation.NumDBEncounters < 1 {
		return errors.New("evaluation.num_db_encounters must be positive")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.PoolSize < 0 {
		return errors.New("workers.pool_size must be non-negative (0 uses all CPUs)")
	}
	if c.Workers.GPUBatchSize < 1 {
		return errors.New("workers.gpu_batch_size must be positive")
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	switch c.Artifacts.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("artifacts.compression must be none, lz4, or zstd (got %q)", c.Artifacts.Compression)
	}
	if c.Artifacts.MinFreeMiB < 0 {
		return errors.New("artifacts.min_free_mib must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
