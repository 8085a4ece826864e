// Package config provides configuration loading and management for lbpdetect.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/esimov/lbpcascade/utils"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Detection parameters of the LBP cascade
	Detection struct {
		// Classifier is the path of the OpenCV LBP cascade description (XML or YAML)
		Classifier string `yaml:"classifier"`

		// ScaleFactor is the multiplier applied to the window between scales
		ScaleFactor float64 `yaml:"scaleFactor"`

		// StepSize is the stride of the sliding window in pixels
		StepSize int `yaml:"stepSize"`

		// Workers is the number of goroutines scanning window rows, 0 means one per CPU
		Workers int `yaml:"workers"`
	} `yaml:"detection"`

	// Image preprocessing
	Preprocess struct {
		// Equalize spreads the image histogram before the detection
		Equalize bool `yaml:"equalize"`

		// MaxSize downscales images whose longest edge exceeds it, 0 disables it
		MaxSize int `yaml:"maxSize"`
	} `yaml:"preprocess"`

	// Output parameters
	Output struct {
		Dir       string `yaml:"dir"`
		Format    string `yaml:"format"`
		Color     string `yaml:"color"`
		RefColor  string `yaml:"referenceColor"`
		Thickness int    `yaml:"thickness"`
		Quality   int    `yaml:"quality"`
		Lossless  bool   `yaml:"lossless"`
		// Workers bounds the number of images processed concurrently in directory mode
		Workers int `yaml:"workers"`
	} `yaml:"output"`

	// Reference detector used to cross-check the results
	Reference struct {
		Enabled bool `yaml:"enabled"`

		// Kind is either "pigo" or "opencv"
		Kind string `yaml:"kind"`

		// Cascade is the PICO cascade for pigo; opencv defaults to the detection classifier
		Cascade      string  `yaml:"cascade"`
		ScaleFactor  float64 `yaml:"scaleFactor"`
		ShiftFactor  float64 `yaml:"shiftFactor"`
		MinSize      int     `yaml:"minSize"`
		MaxSize      int     `yaml:"maxSize"`
		MinQuality   float64 `yaml:"minQuality"`
		IoUThreshold float64 `yaml:"iouThreshold"`
	} `yaml:"reference"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Detection.Classifier = "./lbpcascade_frontalface.xml"
	cfg.Detection.ScaleFactor = 1.3
	cfg.Detection.StepSize = 2

	cfg.Preprocess.Equalize = true

	cfg.Output.Dir = "./"
	cfg.Output.Format = "png"
	cfg.Output.Color = "#00ff00"
	cfg.Output.RefColor = "#ff0000"
	cfg.Output.Thickness = 2
	cfg.Output.Quality = 95

	cfg.Reference.Kind = "opencv"
	cfg.Reference.ScaleFactor = 1.3
	cfg.Reference.ShiftFactor = 0.1
	cfg.Reference.MinSize = 24
	cfg.Reference.MinQuality = 5
	cfg.Reference.IoUThreshold = 0.3

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !(c.Detection.ScaleFactor > 1) {
		return fmt.Errorf("detection.scaleFactor must be greater than 1")
	}
	if c.Detection.StepSize < 1 {
		return fmt.Errorf("detection.stepSize must be at least 1")
	}
	if c.Detection.Workers < 0 {
		return fmt.Errorf("detection.workers must not be negative")
	}
	if c.Preprocess.MaxSize < 0 {
		return fmt.Errorf("preprocess.maxSize must not be negative")
	}
	switch strings.ToLower(c.Output.Format) {
	case "", "jpg", "jpeg", "png", "gif", "bmp", "webp":
	default:
		return fmt.Errorf("output.format %q is not supported", c.Output.Format)
	}
	if _, err := utils.HexToRGBA(c.Output.Color); err != nil {
		return fmt.Errorf("output.color: %w", err)
	}
	if _, err := utils.HexToRGBA(c.Output.RefColor); err != nil {
		return fmt.Errorf("output.referenceColor: %w", err)
	}
	if c.Output.Thickness < 1 {
		return fmt.Errorf("output.thickness must be positive")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if c.Reference.Enabled {
		switch c.Reference.Kind {
		case "pigo":
			if c.Reference.Cascade == "" {
				return fmt.Errorf("reference.cascade is required by the pigo reference detector")
			}
		case "opencv":
		default:
			return fmt.Errorf("reference.kind must be either pigo or opencv")
		}
		if c.Reference.IoUThreshold < 0 || c.Reference.IoUThreshold > 1 {
			return fmt.Errorf("reference.iouThreshold must be between 0 and 1")
		}
	}
	return nil
}

// RectColor returns the parsed outline color of the detections.
func (c *Config) RectColor() color.NRGBA {
	col, err := utils.HexToRGBA(c.Output.Color)
	if err != nil {
		return color.NRGBA{G: 0xff, A: 0xff}
	}
	return col
}

// ReferenceColor returns the parsed outline color of the reference detections.
func (c *Config) ReferenceColor() color.NRGBA {
	col, err := utils.HexToRGBA(c.Output.RefColor)
	if err != nil {
		return color.NRGBA{R: 0xff, A: 0xff}
	}
	return col
}
