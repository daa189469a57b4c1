package config

import (
	"fmt"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDescriptors()
	c.normalizeDTW()
	c.normalizeIdentification()
	c.normalizeArtifacts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CatalogPath, err = expandPath(strings.TrimSpace(c.Paths.CatalogPath)); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Paths.OutlineDir, err = expandPath(strings.TrimSpace(c.Paths.OutlineDir)); err != nil {
		return fmt.Errorf("paths.outline_dir: %w", err)
	}
	if c.Paths.MaskDir, err = expandPath(strings.TrimSpace(c.Paths.MaskDir)); err != nil {
		return fmt.Errorf("paths.mask_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDescriptors() {
	c.Descriptors.Type = strings.ToLower(strings.TrimSpace(c.Descriptors.Type))
	if c.Descriptors.Type == "" {
		c.Descriptors.Type = defaultDescriptorType
	}
}

func (c *Config) normalizeDTW() {
	c.DTW.Cost = strings.ToLower(strings.TrimSpace(c.DTW.Cost))
	if c.DTW.Cost == "" {
		c.DTW.Cost = defaultDTWCost
	}
	c.DTW.WeightPreset = strings.ToLower(strings.TrimSpace(c.DTW.WeightPreset))
}

func (c *Config) normalizeIdentification() {
	methods := make([]string, 0, len(c.Identification.Methods))
	for _, m := range c.Identification.Methods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || slices.Contains(methods, m) {
			continue
		}
		methods = append(methods, m)
	}
	c.Identification.Methods = methods
	c.Identification.Index = strings.ToLower(strings.TrimSpace(c.Identification.Index))
	if c.Identification.Index == "" {
		c.Identification.Index = defaultIndex
	}
	c.Identification.Aggregation = strings.ToLower(strings.TrimSpace(c.Identification.Aggregation))
	if c.Identification.Aggregation == "" {
		c.Identification.Aggregation = defaultAggregation
	}
}

func (c *Config) normalizeArtifacts() {
	c.Artifacts.Compression = strings.ToLower(strings.TrimSpace(c.Artifacts.Compression))
	if c.Artifacts.Compression == "" {
		c.Artifacts.Compression = defaultCompression
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
