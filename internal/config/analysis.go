// Package config loads the optional analysis settings file used by
// calreport. Every field is optional; Get* accessors supply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/residual"
)

// Defaults for fields omitted from the settings file.
const (
	DefaultStride       = 1
	DefaultPlotWidthIn  = 8.0
	DefaultPlotHeightIn = 4.0
	maxConfigSize       = 1 * 1024 * 1024
)

// HeaderNames overrides the sample file column names.
type HeaderNames struct {
	Time *string `json:"t,omitempty"`
	X    *string `json:"x,omitempty"`
	Y    *string `json:"y,omitempty"`
	Z    *string `json:"z,omitempty"`
}

// AnalysisConfig is the JSON settings file for an analysis run. Command-line
// flags take precedence over values set here.
type AnalysisConfig struct {
	Bins                 *int         `json:"bins,omitempty"`
	Stride               *int         `json:"stride,omitempty"`
	CheckBlocks          *int         `json:"check_blocks,omitempty"`
	TimestampToleranceMS *int64       `json:"timestamp_tolerance_ms,omitempty"`
	MaxRowWarnings       *int         `json:"max_row_warnings,omitempty"`
	Header               *HeaderNames `json:"header,omitempty"`
	Plots                *bool        `json:"plots,omitempty"`
	HTML                 *bool        `json:"html,omitempty"`
	PlotWidthIn          *float64     `json:"plot_width_in,omitempty"`
	PlotHeightIn         *float64     `json:"plot_height_in,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file in fsys.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadAnalysisConfig(fsys fsutil.FileSystem, path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", len(data), maxConfigSize)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.Bins != nil && *c.Bins < 1 {
		return fmt.Errorf("bins must be at least 1, got %d", *c.Bins)
	}
	if c.Stride != nil && *c.Stride < 1 {
		return fmt.Errorf("stride must be at least 1, got %d", *c.Stride)
	}
	if c.CheckBlocks != nil && *c.CheckBlocks < 0 {
		return fmt.Errorf("check_blocks must be non-negative, got %d", *c.CheckBlocks)
	}
	if c.TimestampToleranceMS != nil && *c.TimestampToleranceMS < 0 {
		return fmt.Errorf("timestamp_tolerance_ms must be non-negative, got %d", *c.TimestampToleranceMS)
	}
	if c.MaxRowWarnings != nil && *c.MaxRowWarnings < 0 {
		return fmt.Errorf("max_row_warnings must be non-negative, got %d", *c.MaxRowWarnings)
	}
	if c.PlotWidthIn != nil && *c.PlotWidthIn <= 0 {
		return fmt.Errorf("plot_width_in must be positive, got %g", *c.PlotWidthIn)
	}
	if c.PlotHeightIn != nil && *c.PlotHeightIn <= 0 {
		return fmt.Errorf("plot_height_in must be positive, got %g", *c.PlotHeightIn)
	}
	if h := c.Header; h != nil {
		for name, v := range map[string]*string{"t": h.Time, "x": h.X, "y": h.Y, "z": h.Z} {
			if v != nil && *v == "" {
				return fmt.Errorf("header.%s must not be empty", name)
			}
		}
	}
	return nil
}

// GetBins returns the histogram bin count or the default.
func (c *AnalysisConfig) GetBins() int {
	if c.Bins == nil {
		return residual.DefaultBins
	}
	return *c.Bins
}

// GetStride returns the time plot decimation stride or the default.
func (c *AnalysisConfig) GetStride() int {
	if c.Stride == nil {
		return DefaultStride
	}
	return *c.Stride
}

// GetCheckBlocks returns the number of blocks cross-checked against the report.
func (c *AnalysisConfig) GetCheckBlocks() int {
	if c.CheckBlocks == nil {
		return residual.DefaultCheckBlocks
	}
	return *c.CheckBlocks
}

// GetTimestampToleranceMS returns the raw/corrected timestamp tolerance.
func (c *AnalysisConfig) GetTimestampToleranceMS() int64 {
	if c.TimestampToleranceMS == nil {
		return 0
	}
	return *c.TimestampToleranceMS
}

// GetMaxRowWarnings returns the per-file cap on retained row warnings.
func (c *AnalysisConfig) GetMaxRowWarnings() int {
	if c.MaxRowWarnings == nil {
		return residual.DefaultMaxRowWarnings
	}
	return *c.MaxRowWarnings
}

// GetHeader returns the sample file column names, falling back per field.
func (c *AnalysisConfig) GetHeader() residual.Header {
	h := residual.DefaultHeader
	if c.Header == nil {
		return h
	}
	if c.Header.Time != nil {
		h.Time = *c.Header.Time
	}
	if c.Header.X != nil {
		h.X = *c.Header.X
	}
	if c.Header.Y != nil {
		h.Y = *c.Header.Y
	}
	if c.Header.Z != nil {
		h.Z = *c.Header.Z
	}
	return h
}

// GetPlots reports whether PNG charts are rendered.
func (c *AnalysisConfig) GetPlots() bool {
	if c.Plots == nil {
		return true
	}
	return *c.Plots
}

// GetHTML reports whether the HTML dashboard is rendered.
func (c *AnalysisConfig) GetHTML() bool {
	if c.HTML == nil {
		return false
	}
	return *c.HTML
}

// GetPlotSize returns the PNG chart size in inches.
func (c *AnalysisConfig) GetPlotSize() (width, height float64) {
	width, height = DefaultPlotWidthIn, DefaultPlotHeightIn
	if c.PlotWidthIn != nil {
		width = *c.PlotWidthIn
	}
	if c.PlotHeightIn != nil {
		height = *c.PlotHeightIn
	}
	return width, height
}

// ResidualOptions maps the settings onto the engine options.
func (c *AnalysisConfig) ResidualOptions() residual.Options {
	return residual.Options{
		Header:               c.GetHeader(),
		TimestampToleranceMS: c.GetTimestampToleranceMS(),
		CheckBlocks:          c.GetCheckBlocks(),
		MaxRowWarnings:       c.GetMaxRowWarnings(),
	}
}

// Overrides carries values supplied on the command line. Nil fields leave
// the loaded configuration untouched.
type Overrides struct {
	Bins                 *int
	Stride               *int
	CheckBlocks          *int
	TimestampToleranceMS *int64
	Plots                *bool
	HTML                 *bool
}

// Apply copies every set override into c and revalidates.
func (c *AnalysisConfig) Apply(o Overrides) error {
	if o.Bins != nil {
		c.Bins = ptrInt(*o.Bins)
	}
	if o.Stride != nil {
		c.Stride = ptrInt(*o.Stride)
	}
	if o.CheckBlocks != nil {
		c.CheckBlocks = ptrInt(*o.CheckBlocks)
	}
	if o.TimestampToleranceMS != nil {
		c.TimestampToleranceMS = ptrInt64(*o.TimestampToleranceMS)
	}
	if o.Plots != nil {
		c.Plots = ptrBool(*o.Plots)
	}
	if o.HTML != nil {
		c.HTML = ptrBool(*o.HTML)
	}
	return c.Validate()
}
