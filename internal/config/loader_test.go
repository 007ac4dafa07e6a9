package config_test

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/guidoenr/beatscope/internal/config"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := config.Loader{Lookup: envLookup(nil)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.FrameSize != 2048 || cfg.SampleRate != 44100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Bands) != 2 || cfg.Bands[0].Name != "kick" || cfg.Bands[1].Min != 301 {
		t.Fatalf("unexpected default bands %+v", cfg.Bands)
	}
}

func TestLoaderFileThenEnv(t *testing.T) {
	file := `
frame_size: 1024
workers: 2
bands:
  - name: sub
    min: 30
    max: 90
`
	loader := config.Loader{
		Path: "beatscope.yaml",
		ReadFile: func(path string) ([]byte, error) {
			if path != "beatscope.yaml" {
				t.Fatalf("unexpected path %q", path)
			}
			return []byte(file), nil
		},
		Lookup: envLookup(map[string]string{
			"BEATSCOPE_SAMPLE_RATE": "48000",
			"BEATSCOPE_WORKERS":     " 8 ",
		}),
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.FrameSize != 1024 {
		t.Fatalf("frame size=%d want 1024", cfg.FrameSize)
	}
	if cfg.SampleRate != 48000 {
		t.Fatalf("sample rate=%d want 48000", cfg.SampleRate)
	}
	if cfg.Workers != 8 {
		t.Fatalf("workers=%d want 8", cfg.Workers)
	}
	if len(cfg.Bands) != 1 || cfg.Bands[0].Name != "sub" || cfg.Bands[0].Max != 90 {
		t.Fatalf("unexpected bands %+v", cfg.Bands)
	}
}

func TestLoaderEnvBands(t *testing.T) {
	cfg, err := config.Loader{Lookup: envLookup(map[string]string{
		"BEATSCOPE_BANDS": "kick:60-130, 2000-4000",
	})}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	bands := cfg.AnalyzerBands()
	if len(bands) != 2 || bands[0].Name != "kick" || bands[1].Name != "" || bands[1].Min != 2000 {
		t.Fatalf("unexpected bands %+v", bands)
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"frame size one": {"BEATSCOPE_FRAME_SIZE": "1"},
		"not a number":   {"BEATSCOPE_SAMPLE_RATE": "fast"},
		"inverted band":  {"BEATSCOPE_BANDS": "130-60"},
		"malformed band": {"BEATSCOPE_BANDS": "kick"},
		"infinite band":  {"BEATSCOPE_BANDS": "kick:60-inf"},
		"nan band":       {"BEATSCOPE_BANDS": "snare:nan-750"},
		"huge band":      {"BEATSCOPE_BANDS": "kick:60-1e300"},
		"above nyquist":  {"BEATSCOPE_BANDS": "air:100-30000"},
		"sub-bin band":   {"BEATSCOPE_BANDS": "thin:50-60"},
	}
	for name, env := range cases {
		if _, err := (config.Loader{Lookup: envLookup(env)}).Load(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidateRejectsNonFiniteBands(t *testing.T) {
	for _, b := range []config.Band{
		{Name: "inf", Min: 60, Max: math.Inf(1)},
		{Name: "nan", Min: math.NaN(), Max: 750},
		{Name: "huge", Min: 60, Max: 1e300},
	} {
		cfg := config.Defaults()
		cfg.Bands = []config.Band{b}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("band %s: expected error", b.Name)
		}
	}
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := config.Loader{
		Path:   "missing.yaml",
		Lookup: envLookup(nil),
		ReadFile: func(string) ([]byte, error) {
			return nil, os.ErrNotExist
		},
	}.Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v want not-exist", err)
	}
}

func TestLoaderBadYAML(t *testing.T) {
	_, err := config.Loader{
		Path:     "bad.yaml",
		Lookup:   envLookup(nil),
		ReadFile: func(string) ([]byte, error) { return []byte("frame_size: [oops"), nil },
	}.Load()
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("expected yaml error naming the file, got %v", err)
	}
}

func TestAnalyzerConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Workers = 3
	ac := cfg.AnalyzerConfig()
	if ac.FrameSize != 2048 || ac.SampleRate != 44100 || ac.Workers != 3 {
		t.Fatalf("unexpected analyzer config %+v", ac)
	}
}
