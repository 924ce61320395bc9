// Package config provides configuration loading and management for braggscan.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"braggscan/pkg/detection"
	"braggscan/pkg/spectral"
)

// Environment variables read by ApplyEnv
const (
	EnvCores           = "BRAGGSCAN_CORES"
	EnvVerbose         = "BRAGGSCAN_VERBOSE"
	EnvIntermediaryDir = "BRAGGSCAN_INTERMEDIARY_DIR"
	EnvOverlayDir      = "BRAGGSCAN_OVERLAY_DIR"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many images are analyzed concurrently
		NumCores int `yaml:"numCores"`

		// BinRows and BinCols are the block-averaging factors per axis
		BinRows int `yaml:"binRows"`
		BinCols int `yaml:"binCols"`

		// TruncateBinning drops rows and columns that do not fill a whole
		// bin instead of rejecting the image
		TruncateBinning bool `yaml:"truncateBinning"`
	} `yaml:"processing"`

	// Contamination segmentation parameters
	Segmentation struct {
		// Sigma is the Gaussian smoothing applied before thresholding
		Sigma float64 `yaml:"sigma"`

		// MinArea is the smallest object or hole kept, in binned pixels
		MinArea int `yaml:"minArea"`

		// DilationRadius grows the contamination mask, in binned pixels
		DilationRadius int `yaml:"dilationRadius"`
	} `yaml:"segmentation"`

	// Power spectrum and Bragg filter parameters
	Spectrum struct {
		// Window is the taper applied before the FFT: hann, hamming, blackman or none
		Window string `yaml:"window"`

		// MinPeakDistance is the minimum separation of diffraction spots
		MinPeakDistance int `yaml:"minPeakDistance"`

		// PeakThresholdAbs and PeakThresholdRel ignore spectral peaks below an
		// absolute power or below a fraction of the spectrum maximum
		PeakThresholdAbs float64 `yaml:"peakThresholdAbs"`
		PeakThresholdRel float64 `yaml:"peakThresholdRel"`

		// MaxPeaks caps the spectral peaks considered before spot selection;
		// zero keeps all of them
		MaxPeaks int `yaml:"maxPeaks"`

		// NumSpots is the number of spots kept after dropping the DC peak
		NumSpots int `yaml:"numSpots"`

		// DCPolicy selects how the zero-order peak is identified: strongest or center
		DCPolicy string `yaml:"dcPolicy"`

		// BraggRadius is the passband disk radius around each spot
		BraggRadius int `yaml:"braggRadius"`

		// SymmetricMask adds the conjugate of every spot to the Bragg mask
		SymmetricMask bool `yaml:"symmetricMask"`

		// ImagTolerance bounds the imaginary residue of the filtered image
		ImagTolerance float64 `yaml:"imagTolerance"`
	} `yaml:"spectrum"`

	// Blob detection parameters
	Blobs struct {
		// SmoothSigma is the Gaussian smoothing of the residual image
		SmoothSigma float64 `yaml:"smoothSigma"`

		MinSigma      float64 `yaml:"minSigma"`
		MaxSigma      float64 `yaml:"maxSigma"`
		NumSigma      int     `yaml:"numSigma"`
		Threshold     float64 `yaml:"threshold"`
		ExcludeBorder int     `yaml:"excludeBorder"`
		Overlap       float64 `yaml:"overlap"`

		// Polarity selects intensity dips (dark), bumps (bright) or both
		Polarity string `yaml:"polarity"`
	} `yaml:"blobs"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save every pipeline stage as an image
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where stage images are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Overlays enables rendering detections over each image
		Overlays bool `yaml:"overlays"`

		// OverlayDir is where overlays are written
		OverlayDir string `yaml:"overlayDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.BinRows = 2
	cfg.Processing.BinCols = 2
	cfg.Processing.TruncateBinning = false

	// Set default segmentation parameters
	cfg.Segmentation.Sigma = 3
	cfg.Segmentation.MinArea = 64
	cfg.Segmentation.DilationRadius = 5

	// Set default spectrum parameters
	cfg.Spectrum.Window = string(spectral.WindowHann)
	cfg.Spectrum.MinPeakDistance = 5
	cfg.Spectrum.PeakThresholdAbs = 0
	cfg.Spectrum.PeakThresholdRel = 0
	cfg.Spectrum.MaxPeaks = 0
	cfg.Spectrum.NumSpots = 6
	cfg.Spectrum.DCPolicy = string(detection.SuppressStrongest)
	cfg.Spectrum.BraggRadius = 3
	cfg.Spectrum.SymmetricMask = true
	cfg.Spectrum.ImagTolerance = 1e-6

	// Set default blob parameters
	cfg.Blobs.SmoothSigma = 1
	cfg.Blobs.MinSigma = 2
	cfg.Blobs.MaxSigma = 6
	cfg.Blobs.NumSigma = 9
	cfg.Blobs.Threshold = 0.1
	cfg.Blobs.ExcludeBorder = 8
	cfg.Blobs.Overlap = 0.5
	cfg.Blobs.Polarity = string(detection.PolarityBoth)

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Overlays = false
	cfg.Output.OverlayDir = "overlays"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads the given .env files (or ./.env when none is given) and
// applies BRAGGSCAN_* overrides. Missing .env files are ignored; unreadable
// or malformed ones are an error.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	if v, ok := os.LookupEnv(EnvCores); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvCores, v, err)
		}
		c.Processing.NumCores = n
	}
	if v, ok := os.LookupEnv(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvVerbose, v, err)
		}
		c.Output.Verbose = b
	}
	if v, ok := os.LookupEnv(EnvIntermediaryDir); ok && v != "" {
		c.Output.IntermediaryDir = v
	}
	if v, ok := os.LookupEnv(EnvOverlayDir); ok && v != "" {
		c.Output.OverlayDir = v
	}
	return nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Processing.NumCores >= 1, "processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	check(c.Processing.BinRows >= 1, "processing.binRows must be at least 1, got %d", c.Processing.BinRows)
	check(c.Processing.BinCols >= 1, "processing.binCols must be at least 1, got %d", c.Processing.BinCols)

	check(c.Segmentation.Sigma >= 0, "segmentation.sigma must not be negative")
	check(c.Segmentation.MinArea >= 0, "segmentation.minArea must not be negative")
	check(c.Segmentation.DilationRadius >= 0, "segmentation.dilationRadius must not be negative")

	if _, err := spectral.ParseWindow(c.Spectrum.Window); err != nil {
		errs = append(errs, fmt.Errorf("spectrum.window: %w", err))
	}
	if _, err := detection.ParseDCPolicy(c.Spectrum.DCPolicy); err != nil {
		errs = append(errs, fmt.Errorf("spectrum.dcPolicy: %w", err))
	}
	check(c.Spectrum.MinPeakDistance >= 1, "spectrum.minPeakDistance must be at least 1")
	check(c.Spectrum.PeakThresholdAbs >= 0, "spectrum.peakThresholdAbs must not be negative")
	check(c.Spectrum.MaxPeaks >= 0, "spectrum.maxPeaks must not be negative")
	check(c.Spectrum.PeakThresholdRel >= 0 && c.Spectrum.PeakThresholdRel < 1, "spectrum.peakThresholdRel must be within [0, 1)")
	check(c.Spectrum.NumSpots >= 1, "spectrum.numSpots must be at least 1")
	check(c.Spectrum.BraggRadius >= 0, "spectrum.braggRadius must not be negative")
	check(c.Spectrum.ImagTolerance >= 0, "spectrum.imagTolerance must not be negative")

	check(c.Blobs.SmoothSigma >= 0, "blobs.smoothSigma must not be negative")
	check(c.Blobs.MinSigma > 0, "blobs.minSigma must be positive")
	check(c.Blobs.MaxSigma >= c.Blobs.MinSigma, "blobs.maxSigma must be at least blobs.minSigma")
	check(c.Blobs.NumSigma >= 1, "blobs.numSigma must be at least 1")
	check(c.Blobs.ExcludeBorder >= 0, "blobs.excludeBorder must not be negative")
	check(c.Blobs.Overlap >= 0 && c.Blobs.Overlap <= 1, "blobs.overlap must be within [0, 1]")
	if _, err := detection.ParsePolarity(c.Blobs.Polarity); err != nil {
		errs = append(errs, fmt.Errorf("blobs.polarity: %w", err))
	}

	return errors.Join(errs...)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
