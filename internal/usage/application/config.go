package application

import (
	"os"

	"gopkg.in/yaml.v3"

	usage "waterwatch/internal/usage/domain"
)

// DetectionConfig tunes the anomaly detector and ingest defaults.
type DetectionConfig struct {
	SustainedRatio  float64 `yaml:"sustained_ratio"`
	NightRatio      float64 `yaml:"night_ratio"`
	SpikeRatio      float64 `yaml:"spike_ratio"`
	TrendRatio      float64 `yaml:"trend_ratio"`
	BaselineFloor   float64 `yaml:"baseline_floor"`
	DefaultBaseline float64 `yaml:"default_baseline"`
	WindowSize      int     `yaml:"window_size"`
}

// DefaultDetectionConfig returns the reference thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SustainedRatio:  1.5,
		NightRatio:      0.5,
		SpikeRatio:      3,
		TrendRatio:      1.8,
		BaselineFloor:   1,
		DefaultBaseline: 100,
		WindowSize:      24,
	}
}

// LoadDetectionConfig loads detection thresholds, optionally overridden
// from a yaml file named by WATERWATCH_DETECTION_CONFIG.
func LoadDetectionConfig() (DetectionConfig, error) {
	cfg := DefaultDetectionConfig()
	if path := os.Getenv("WATERWATCH_DETECTION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg.normalized(), nil
}

func (c DetectionConfig) normalized() DetectionConfig {
	defaults := DefaultDetectionConfig()
	if c.SustainedRatio <= 0 {
		c.SustainedRatio = defaults.SustainedRatio
	}
	if c.NightRatio <= 0 {
		c.NightRatio = defaults.NightRatio
	}
	if c.SpikeRatio <= 0 {
		c.SpikeRatio = defaults.SpikeRatio
	}
	if c.TrendRatio <= 0 {
		c.TrendRatio = defaults.TrendRatio
	}
	if c.BaselineFloor <= 0 {
		c.BaselineFloor = defaults.BaselineFloor
	}
	if c.DefaultBaseline <= 0 {
		c.DefaultBaseline = defaults.DefaultBaseline
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaults.WindowSize
	}
	return c
}

// Detector builds a detector from the config.
func (c DetectionConfig) Detector() usage.Detector {
	c = c.normalized()
	return usage.Detector{
		SustainedRatio: c.SustainedRatio,
		NightRatio:     c.NightRatio,
		SpikeRatio:     c.SpikeRatio,
		TrendRatio:     c.TrendRatio,
		BaselineFloor:  c.BaselineFloor,
	}
}
