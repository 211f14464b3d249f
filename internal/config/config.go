// Package config loads viewer settings from .env, the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"mri-viewer/internal/overlay"
	"mri-viewer/internal/viewport"
	"mri-viewer/pkg/colorutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvAPIURL         = "MRI_API_URL"
	EnvConfigFile     = "MRI_CONFIG"
	EnvRequestTimeout = "MRI_REQUEST_TIMEOUT"
	EnvPollInterval   = "MRI_HISTORY_POLL"
)

// Config holds application settings.
type Config struct {
	APIURL              string         `yaml:"api_url"`
	RequestTimeout      time.Duration  `yaml:"request_timeout"`
	HistoryPollInterval time.Duration  `yaml:"history_poll_interval"`
	Viewport            ViewportConfig `yaml:"viewport"`

	// Path is the YAML file the settings were read from, if any.
	Path string `yaml:"-"`
}

// ViewportConfig controls the drawing surface and region style.
type ViewportConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	Interpolator string  `yaml:"interpolator"`
	StrokeColor  string  `yaml:"stroke_color"`
	FillColor    string  `yaml:"fill_color"`
	LineWidth    float64 `yaml:"line_width"`

	HeatmapOpacity float64 `yaml:"heatmap_opacity"`
	HeatmapBlend   string  `yaml:"heatmap_blend"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIURL:              "http://localhost:5000",
		RequestTimeout:      60 * time.Second,
		HistoryPollInterval: 30 * time.Second,
		Viewport: ViewportConfig{
			Width:        512,
			Height:       512,
			Interpolator: viewport.InterpBilinear,
			StrokeColor:  "#ff0000cc",
			FillColor:    "#ff000033",
			LineWidth:    3,

			HeatmapOpacity: 0.5,
			HeatmapBlend:   "normal",
		},
	}
}

// Load reads .env (if present), then the YAML file named by MRI_CONFIG (if
// set), then the remaining environment overrides.
func Load() (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads settings from a YAML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := getenv(EnvRequestTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	if v := getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.HistoryPollInterval = d
	}
	return nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api_url is required"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout))
	}
	if c.HistoryPollInterval < 0 {
		errs = append(errs, fmt.Errorf("history_poll_interval must not be negative, got %s", c.HistoryPollInterval))
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		errs = append(errs, fmt.Errorf("viewport size must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height))
	}
	if _, err := viewport.ParseInterpolator(c.Viewport.Interpolator); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Viewport.Style(); err != nil {
		errs = append(errs, err)
	}
	if o := c.Viewport.HeatmapOpacity; o < 0 || o > 1 {
		errs = append(errs, fmt.Errorf("heatmap_opacity must be in [0, 1], got %v", o))
	}
	if _, err := overlay.ParseBlendMode(c.Viewport.HeatmapBlend); err != nil {
		errs = append(errs, fmt.Errorf("heatmap_blend: %w", err))
	}
	return errors.Join(errs...)
}

// Style converts the configured colors and width into a region style.
func (v ViewportConfig) Style() (viewport.Style, error) {
	style := viewport.DefaultStyle()
	if v.StrokeColor != "" {
		c, err := colorutil.ParseHex(v.StrokeColor)
		if err != nil {
			return style, fmt.Errorf("stroke_color: %w", err)
		}
		style.Stroke = c
	}
	if v.FillColor != "" {
		c, err := colorutil.ParseHex(v.FillColor)
		if err != nil {
			return style, fmt.Errorf("fill_color: %w", err)
		}
		style.Fill = c
	}
	if v.LineWidth < 0 {
		return style, fmt.Errorf("line_width must not be negative, got %v", v.LineWidth)
	}
	if v.LineWidth > 0 {
		style.LineWidth = v.LineWidth
	}
	return style, nil
}
