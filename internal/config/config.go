package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/guidoenr/beatscope/internal/analyzer"
)

const (
	DefaultFrameSize  = analyzer.DefaultFrameSize
	DefaultSampleRate = analyzer.DefaultSampleRate
)

// Band is a named detection band in Hz.
type Band struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Config captures the analysis settings shared by the CLI, the config file
// and the environment.
type Config struct {
	FrameSize  int    `yaml:"frame_size"`
	SampleRate int    `yaml:"sample_rate"`
	Workers    int    `yaml:"workers"`
	Bands      []Band `yaml:"bands"`
}

// DefaultBands are the kick and snare ranges the detector was calibrated on.
func DefaultBands() []Band {
	return []Band{
		{Name: "kick", Min: 60, Max: 130},
		{Name: "snare", Min: 301, Max: 750},
	}
}

// Defaults returns the reference configuration.
func Defaults() Config {
	return Config{
		FrameSize:  DefaultFrameSize,
		SampleRate: DefaultSampleRate,
		Bands:      DefaultBands(),
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.FrameSize <= 1 {
		return fmt.Errorf("config: frame_size must be > 1, got %d", c.FrameSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be > 0, got %d", c.SampleRate)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if len(c.Bands) == 0 {
		return fmt.Errorf("config: at least one band is required")
	}
	for _, b := range c.Bands {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
			return fmt.Errorf("config: band %q has non-finite range %g-%g Hz", b.Name, b.Min, b.Max)
		}
		if b.Min < 0 || b.Max <= b.Min {
			return fmt.Errorf("config: band %q has invalid range %g-%g Hz", b.Name, b.Min, b.Max)
		}
	}
	engine, err := analyzer.New(c.AnalyzerConfig())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, b := range c.AnalyzerBands() {
		if _, _, err := engine.BinRange(b); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// AnalyzerConfig converts c for analyzer.New.
func (c Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		FrameSize:  c.FrameSize,
		SampleRate: c.SampleRate,
		Workers:    c.Workers,
	}
}

// AnalyzerBands converts the configured bands.
func (c Config) AnalyzerBands() []analyzer.Band {
	out := make([]analyzer.Band, len(c.Bands))
	for i, b := range c.Bands {
		out[i] = analyzer.Band{Name: b.Name, Min: b.Min, Max: b.Max}
	}
	return out
}

// ParseBands reads "name:min-max,..." lists. Names are optional.
func ParseBands(raw string) ([]Band, error) {
	var bands []Band
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var b Band
		if name, rng, ok := strings.Cut(part, ":"); ok {
			b.Name = strings.TrimSpace(name)
			part = rng
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("config: band %q: expected min-max", part)
		}
		var err error
		if b.Min, err = strconv.ParseFloat(strings.TrimSpace(lo), 64); err != nil {
			return nil, fmt.Errorf("config: band %q: %w", part, err)
		}
		if b.Max, err = strconv.ParseFloat(strings.TrimSpace(hi), 64); err != nil {
			return nil, fmt.Errorf("config: band %q: %w", part, err)
		}
		bands = append(bands, b)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("config: no bands in %q", raw)
	}
	return bands, nil
}
