// Package config provides configuration loading and management for lungqct.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"lungqct/internal/models"
	"lungqct/pkg/peak"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many subjects are analysed in parallel
		NumCores int `yaml:"numCores"`

		// SliceThickness overrides the z spacing in volume computations, in mm.
		// Zero keeps the spacing of the CT header.
		SliceThickness float64 `yaml:"sliceThickness"`
	} `yaml:"processing"`

	// Input layout: one directory per subject under BaseDir
	Input struct {
		BaseDir string `yaml:"baseDir"`

		// Subjects restricts the run to these directory names; empty means all
		Subjects []string `yaml:"subjects"`

		CTName      string `yaml:"ctName"`
		LungMask    string `yaml:"lungMask"`
		UpperMask   string `yaml:"upperMask"`
		VentralMask string `yaml:"ventralMask"`
		MixedMask   string `yaml:"mixedMask"`

		// DICOMDir is the series directory read for the accession number
		DICOMDir string `yaml:"dicomDir"`

		// GenerateMasks derives missing upper/ventral/mixed masks from the lung mask
		GenerateMasks bool `yaml:"generateMasks"`

		// WriteMasks stores generated masks next to the lung mask
		WriteMasks bool `yaml:"writeMasks"`

		UpperAtLowZ    bool `yaml:"upperAtLowZ"`
		VentralAtHighY bool `yaml:"ventralAtHighY"`
	} `yaml:"input"`

	// QCT analysis parameters
	QCT struct {
		Regions     []string `yaml:"regions"`
		Ventilation bool     `yaml:"ventilation"`

		Window     peak.Interval `yaml:"window"`
		PeakKernel int           `yaml:"peakKernel"`
		FitBins    int           `yaml:"fitBins"`
		IllKernel  int           `yaml:"illKernel"`
		GateMean   peak.Interval `yaml:"gateMean"`
		GateSigma  peak.Interval `yaml:"gateSigma"`
		Threshold  peak.Interval `yaml:"threshold"`

		// Fit bounds and initial guess as [amplitude, mean, sigma]
		Initial        [3]float64 `yaml:"initial"`
		Lower          [3]float64 `yaml:"lower"`
		Upper          [3]float64 `yaml:"upper"`
		MaxEvaluations int        `yaml:"maxEvaluations"`
	} `yaml:"qct"`

	// Output parameters
	Output struct {
		Dir string `yaml:"dir"`

		// Table is the per-region TSV, Wide the per-subject table
		Table string `yaml:"table"`
		Wide  string `yaml:"wide"`

		Plots    bool `yaml:"plots"`
		Previews bool `yaml:"previews"`

		// Database is a SQLite file recording every run; empty disables it
		Database string `yaml:"database"`

		LogLevel string `yaml:"logLevel"`
		LogJSON  bool   `yaml:"logJSON"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SliceThickness = 0

	cfg.Input.BaseDir = "."
	cfg.Input.CTName = "CT_3mm.nii"
	cfg.Input.LungMask = "mask_R231CW_3mm.nii"
	cfg.Input.UpperMask = "mask_R231CW_3mm_upper.nii"
	cfg.Input.VentralMask = "mask_R231CW_3mm_ventral.nii"
	cfg.Input.MixedMask = "mask_R231CW_3mm_mixed.nii"
	cfg.Input.DICOMDir = "CT"
	cfg.Input.GenerateMasks = true

	pc := peak.DefaultConfig()
	cfg.QCT.Regions = []string{"bilat", "left", "right"}
	cfg.QCT.Window = pc.Window
	cfg.QCT.PeakKernel = pc.PeakKernel
	cfg.QCT.FitBins = pc.FitBins
	cfg.QCT.IllKernel = pc.IllKernel
	cfg.QCT.GateMean = pc.GateMean
	cfg.QCT.GateSigma = pc.GateSigma
	cfg.QCT.Threshold = pc.Threshold
	cfg.QCT.Initial = triple(pc.Fit.Initial)
	cfg.QCT.Lower = triple(pc.Fit.Lower)
	cfg.QCT.Upper = triple(pc.Fit.Upper)
	cfg.QCT.MaxEvaluations = pc.Fit.MaxEvaluations

	cfg.Output.Dir = "results"
	cfg.Output.Table = "qct_features.tsv"
	cfg.Output.Wide = "clinical_features.csv"
	cfg.Output.Plots = true
	cfg.Output.LogLevel = "info"

	return cfg
}

func triple(p peak.Params) [3]float64 {
	return [3]float64{p.Amplitude, p.Mean, p.Sigma}
}

func params(v [3]float64) peak.Params {
	return peak.Params{Amplitude: v[0], Mean: v[1], Sigma: v[2]}
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Regions parses the configured region names
func (c *Config) Regions() ([]models.Region, error) {
	return models.ParseRegions(c.QCT.Regions)
}

// Peak returns the isolator configuration
func (c *Config) Peak() peak.Config {
	return peak.Config{
		Window:     c.QCT.Window,
		PeakKernel: c.QCT.PeakKernel,
		FitBins:    c.QCT.FitBins,
		Fit: peak.FitOptions{
			Initial:        params(c.QCT.Initial),
			Lower:          params(c.QCT.Lower),
			Upper:          params(c.QCT.Upper),
			MaxEvaluations: c.QCT.MaxEvaluations,
		},
		GateMean:  c.QCT.GateMean,
		GateSigma: c.QCT.GateSigma,
		IllKernel: c.QCT.IllKernel,
		Threshold: c.QCT.Threshold,
	}
}

// Validate rejects configurations that cannot run. Unknown regions are
// reported here, before any subject is processed.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Regions(); err != nil {
		errs = append(errs, err)
	}
	if len(c.QCT.Regions) == 0 {
		errs = append(errs, errors.New("qct.regions is empty"))
	}
	if c.Processing.SliceThickness < 0 {
		errs = append(errs, fmt.Errorf("processing.sliceThickness %g is negative", c.Processing.SliceThickness))
	}
	if c.Input.CTName == "" || c.Input.LungMask == "" {
		errs = append(errs, errors.New("input.ctName and input.lungMask are required"))
	}
	for name, iv := range map[string]peak.Interval{
		"window": c.QCT.Window, "gateMean": c.QCT.GateMean,
		"gateSigma": c.QCT.GateSigma, "threshold": c.QCT.Threshold,
	} {
		if iv.Low >= iv.High {
			errs = append(errs, fmt.Errorf("qct.%s: low %g is not below high %g", name, iv.Low, iv.High))
		}
	}
	if c.QCT.PeakKernel < 1 || c.QCT.IllKernel < 1 {
		errs = append(errs, errors.New("qct kernels must be at least 1"))
	}
	if c.QCT.FitBins < 3 {
		errs = append(errs, fmt.Errorf("qct.fitBins %d is below the 3 fitted parameters", c.QCT.FitBins))
	}
	for i, name := range []string{"amplitude", "mean", "sigma"} {
		lo, hi, p0 := c.QCT.Lower[i], c.QCT.Upper[i], c.QCT.Initial[i]
		if lo > hi {
			errs = append(errs, fmt.Errorf("qct %s bounds [%g, %g] are inverted", name, lo, hi))
		} else if p0 < lo || p0 > hi {
			errs = append(errs, fmt.Errorf("qct initial %s %g outside [%g, %g]", name, p0, lo, hi))
		}
	}
	if c.QCT.Lower[2] <= 0 {
		errs = append(errs, errors.New("qct lower sigma must be positive"))
	}
	if c.QCT.MaxEvaluations <= 0 {
		errs = append(errs, errors.New("qct.maxEvaluations must be positive"))
	}
	return errors.Join(errs...)
}
