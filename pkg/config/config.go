// Package config provides configuration loading and management for cascade.
// It handles loading configuration from YAML files and environment variables
// and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cascade/pkg/fit"
	"cascade/pkg/geometry"
)

// EnvPrefix is the prefix of environment variables overriding the file,
// e.g. CASCADE_DETECTOR_WIDTH.
const EnvPrefix = "CASCADE"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Detector describes the frames the data server sends
	Detector struct {
		// Width and Height of one image in pixels
		Width  int `yaml:"width" mapstructure:"width"`
		Height int `yaml:"height" mapstructure:"height"`

		// Foils is the number of foils of a TOF stack
		Foils int `yaml:"foils" mapstructure:"foils"`

		// Timechannels per foil
		Timechannels int `yaml:"timechannels" mapstructure:"timechannels"`

		// ImageCount is the number of images the server sends without pseudo
		// compression. Zero means foils*timechannels.
		ImageCount int `yaml:"imageCount" mapstructure:"imageCount"`

		// FoilBegin holds the first image of each foil without pseudo
		// compression. Empty means foils back to back.
		FoilBegin []int `yaml:"foilBegin" mapstructure:"foilBegin"`

		// PseudoCompression stores only foils*timechannels images
		PseudoCompression bool `yaml:"pseudoCompression" mapstructure:"pseudoCompression"`

		// KnownResolutions are tried first when a payload size does not match
		KnownResolutions []geometry.Resolution `yaml:"knownResolutions" mapstructure:"knownResolutions"`

		// FoilPhases are the calibrated phases of the foils in radians, used
		// to align them when adding up graphs. Empty means fit each foil.
		FoilPhases []float64 `yaml:"foilPhases" mapstructure:"foilPhases"`
	} `yaml:"detector" mapstructure:"detector"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for per-pixel fits
		NumCores int `yaml:"numCores" mapstructure:"numCores"`

		// PhaseInDegrees reports phase images in degrees instead of radians
		PhaseInDegrees bool `yaml:"phaseInDegrees" mapstructure:"phaseInDegrees"`

		// MinCounts skips pixels with fewer counts in phase and contrast images
		MinCounts uint64 `yaml:"minCounts" mapstructure:"minCounts"`

		// RoiFile is loaded into the stores when set
		RoiFile string `yaml:"roiFile" mapstructure:"roiFile"`
	} `yaml:"processing" mapstructure:"processing"`

	// Fit bounds the Levenberg-Marquardt iterations
	Fit fit.Settings `yaml:"fit" mapstructure:"fit"`

	// Transport parameters of the data server connection
	Transport struct {
		// Compressed means image payloads arrive zlib compressed
		Compressed bool `yaml:"compressed" mapstructure:"compressed"`

		// MaxPayload limits a decompressed payload in bytes
		MaxPayload int `yaml:"maxPayload" mapstructure:"maxPayload"`
	} `yaml:"transport" mapstructure:"transport"`

	// Export parameters written into XML image headers
	Export struct {
		InstrumentName string  `yaml:"instrumentName" mapstructure:"instrumentName"`
		Location       string  `yaml:"location" mapstructure:"location"`
		SampleDetector int     `yaml:"sampleDetector" mapstructure:"sampleDetector"`
		Wavelength     float64 `yaml:"wavelength" mapstructure:"wavelength"`
		Lifetime       float64 `yaml:"lifetime" mapstructure:"lifetime"`
		BeamMonitor    int     `yaml:"beamMonitor" mapstructure:"beamMonitor"`
	} `yaml:"export" mapstructure:"export"`

	// Log output
	Log struct {
		// Mode is "development" (colored console) or "release" (JSON)
		Mode string `yaml:"mode" mapstructure:"mode"`

		// Level is the minimum level logged
		Level string `yaml:"level" mapstructure:"level"`
	} `yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default detector parameters
	cfg.Detector.Width = 128
	cfg.Detector.Height = 128
	cfg.Detector.Foils = 6
	cfg.Detector.Timechannels = 16
	cfg.Detector.ImageCount = 196
	cfg.Detector.FoilBegin = []int{0, 32, 64, 96, 128, 160}
	cfg.Detector.PseudoCompression = true
	cfg.Detector.KnownResolutions = defaultResolutions()

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.PhaseInDegrees = false
	cfg.Processing.MinCounts = 0

	// Set default fit parameters
	cfg.Fit = fit.DefaultSettings()

	// Set default transport parameters
	cfg.Transport.Compressed = false
	cfg.Transport.MaxPayload = 256 << 20

	// Set default export parameters
	cfg.Export.InstrumentName = "MIRA"
	cfg.Export.Location = "FRM II"

	cfg.Log.Mode = "development"
	cfg.Log.Level = "info"

	return cfg
}

func defaultResolutions() []geometry.Resolution {
	return []geometry.Resolution{{Width: 128, Height: 128}, {Width: 64, Height: 64}}
}

// setDefaults registers every key with viper so that environment variables
// can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("detector.width", d.Detector.Width)
	v.SetDefault("detector.height", d.Detector.Height)
	v.SetDefault("detector.foils", d.Detector.Foils)
	v.SetDefault("detector.timechannels", d.Detector.Timechannels)
	v.SetDefault("detector.imageCount", d.Detector.ImageCount)
	v.SetDefault("detector.pseudoCompression", d.Detector.PseudoCompression)

	v.SetDefault("processing.numCores", d.Processing.NumCores)
	v.SetDefault("processing.phaseInDegrees", d.Processing.PhaseInDegrees)
	v.SetDefault("processing.minCounts", d.Processing.MinCounts)
	v.SetDefault("processing.roiFile", d.Processing.RoiFile)

	v.SetDefault("fit.maxIterations", d.Fit.MaxIterations)
	v.SetDefault("fit.tolerance", d.Fit.Tolerance)

	v.SetDefault("transport.compressed", d.Transport.Compressed)
	v.SetDefault("transport.maxPayload", d.Transport.MaxPayload)

	v.SetDefault("export.instrumentName", d.Export.InstrumentName)
	v.SetDefault("export.location", d.Export.Location)
	v.SetDefault("export.sampleDetector", d.Export.SampleDetector)
	v.SetDefault("export.wavelength", d.Export.Wavelength)
	v.SetDefault("export.lifetime", d.Export.Lifetime)
	v.SetDefault("export.beamMonitor", d.Export.BeamMonitor)

	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadConfig loads configuration from a YAML file and CASCADE_* environment
// variables. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file if present
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// lists have no environment form; fall back to the defaults
	if !v.IsSet("detector.foilBegin") {
		if fb := DefaultConfig().Detector.FoilBegin; len(fb) == cfg.Detector.Foils {
			cfg.Detector.FoilBegin = fb
		}
	}
	if len(cfg.Detector.KnownResolutions) == 0 {
		cfg.Detector.KnownResolutions = defaultResolutions()
	}

	return cfg, nil
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

// Geometry converts the detector section into a frame geometry.
func (c *Config) Geometry() (geometry.Geometry, error) {
	d := c.Detector
	g := geometry.New(d.Width, d.Height, d.Foils, d.Timechannels)
	g.PseudoCompression = d.PseudoCompression
	if d.ImageCount > 0 {
		g.ImageCount = d.ImageCount
	}
	if len(d.FoilBegin) > 0 {
		g.FoilBegin = append([]int(nil), d.FoilBegin...)
	}
	if err := g.Validate(); err != nil {
		return geometry.Geometry{}, fmt.Errorf("invalid detector configuration: %w", err)
	}
	return g, nil
}

// FoilPhases returns the configured foil phases, or nil when they do not
// cover every foil.
func (c *Config) FoilPhases() []float64 {
	if len(c.Detector.FoilPhases) != c.Detector.Foils {
		return nil
	}
	return append([]float64(nil), c.Detector.FoilPhases...)
}
