// Package config holds the settings of a landscape run. A run is
// configured from a JSON file; fields omitted from the file keep their
// defaults, and command-line flags are applied on top by app/landscape.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsawler/go-landscape/landscape"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds every setting of a landscape run
type Config struct {
	Steps          int    `json:"steps"`
	DirectionCount int    `json:"direction_count"`
	SampleCap      int    `json:"sample_cap"`
	Seed           uint64 `json:"seed"`
	Workers        int    `json:"workers"`

	ModelPath       string `json:"model_path"`
	DatasetPath     string `json:"dataset_path"`
	MeanImagePath   string `json:"mean_image_path,omitempty"`
	CacheDirectory  string `json:"cache_directory,omitempty"`
	OutputDirectory string `json:"output_directory"`

	// StrictCache turns a stale grid cache into an error instead of a warning.
	StrictCache bool `json:"strict_cache"`

	// ImageShape is (channels, height, width) of the mean image and of
	// records decoded from the dataset.
	ImageShape []int `json:"image_shape"`
	BatchSize  int   `json:"batch_size"`
	CacheSize  int   `json:"cache_size"` // decoded images kept between scans

	SidecarURL string `json:"sidecar_url,omitempty"`
}

// Default returns the settings used when nothing else is given
func Default() *Config {
	return &Config{
		Steps:           51,
		DirectionCount:  landscape.DirectionCount,
		SampleCap:       landscape.DefaultSampleCap,
		Seed:            1,
		Workers:         1,
		OutputDirectory: "landscape-output",
		ImageShape:      []int{3, 32, 32},
		BatchSize:       64,
		CacheSize:       10000,
	}
}

// Load reads a JSON config file over the defaults.
// The file must have a .json extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", c.Steps)
	}
	if c.DirectionCount != landscape.DirectionCount {
		return fmt.Errorf("direction_count must be %d, got %d", landscape.DirectionCount, c.DirectionCount)
	}
	if c.SampleCap < 1 {
		return fmt.Errorf("sample_cap must be positive, got %d", c.SampleCap)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", c.CacheSize)
	}

	if len(c.ImageShape) != 3 {
		return fmt.Errorf("image_shape must be [channels, height, width], got %v", c.ImageShape)
	}
	for _, d := range c.ImageShape {
		if d < 1 {
			return fmt.Errorf("image_shape dimensions must be positive, got %v", c.ImageShape)
		}
	}

	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory is required")
	}
	return nil
}

// ImageLen returns channels*height*width of ImageShape
func (c *Config) ImageLen() int {
	n := 1
	for _, d := range c.ImageShape {
		n *= d
	}
	return n
}

// Save writes the config as indented JSON
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
