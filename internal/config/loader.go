package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from an optional YAML file and environment
// variables. Tests can override Lookup and ReadFile.
type Loader struct {
	Path     string
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load applies defaults, then the file, then the environment, and validates.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Defaults()
	if l.Path != "" {
		data, err := l.ReadFile(l.Path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", l.Path, err)
		}
		if err := applyYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", l.Path, err)
		}
	}

	if err := overrideInt(l.Lookup, "BEATSCOPE_FRAME_SIZE", &cfg.FrameSize); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "BEATSCOPE_SAMPLE_RATE", &cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "BEATSCOPE_WORKERS", &cfg.Workers); err != nil {
		return Config{}, err
	}
	if raw, ok := l.Lookup("BEATSCOPE_BANDS"); ok && strings.TrimSpace(raw) != "" {
		bands, err := ParseBands(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Bands = bands
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyYAML(data []byte, cfg *Config) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.FrameSize != 0 {
		cfg.FrameSize = file.FrameSize
	}
	if file.SampleRate != 0 {
		cfg.SampleRate = file.SampleRate
	}
	if file.Workers != 0 {
		cfg.Workers = file.Workers
	}
	if len(file.Bands) > 0 {
		cfg.Bands = file.Bands
	}
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}
