// Package report writes detected beats to a JSON file.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/guidoenr/beatscope/internal/analyzer"
)

// Record is the JSON document written for one analyzed file.
type Record struct {
	FileName        string        `json:"fileName"`
	SampleRate      int           `json:"sampleRate"`
	FrameSize       int           `json:"frameSize"`
	FrameDurationNs int64         `json:"frameDurationNs"`
	Frames          int           `json:"frames"`
	Duration        time.Duration `json:"durationNs"`
	Bands           []BandRecord  `json:"bands"`
	BeatsUs         []int64       `json:"beatsUs"`
}

// BandRecord lists the beats found in a single band.
type BandRecord struct {
	Name    string  `json:"name,omitempty"`
	MinHz   float64 `json:"minHz"`
	MaxHz   float64 `json:"maxHz"`
	BeatsUs []int64 `json:"beatsUs"`
}

// Build runs the detector per band and collects the per-band and combined beats.
func Build(name string, e *analyzer.Engine, spec analyzer.Spectrogram, bands []analyzer.Band) (*Record, error) {
	perBand, err := e.DetectEach(spec, bands...)
	if err != nil {
		return nil, err
	}
	return FromBands(name, e, spec.Frames(), bands, perBand)
}

// FromBands assembles a Record from beat sets already detected per band.
// perBand[i] belongs to bands[i].
func FromBands(name string, e *analyzer.Engine, frames int, bands []analyzer.Band, perBand []analyzer.BeatSet) (*Record, error) {
	if len(perBand) != len(bands) {
		return nil, fmt.Errorf("report: %d beat sets for %d bands", len(perBand), len(bands))
	}
	rec := &Record{
		FileName:        name,
		SampleRate:      e.SampleRate(),
		FrameSize:       e.FrameSize(),
		FrameDurationNs: int64(e.FrameDuration()),
		Frames:          frames,
		Duration:        time.Duration(frames) * e.FrameDuration(),
		Bands:           make([]BandRecord, 0, len(bands)),
		BeatsUs:         analyzer.UnionAll(perBand...).Sorted(),
	}
	for i, b := range bands {
		rec.Bands = append(rec.Bands, BandRecord{
			Name:    b.Name,
			MinHz:   b.Min,
			MaxHz:   b.Max,
			BeatsUs: perBand[i].Sorted(),
		})
	}
	return rec, nil
}

// Write stores rec as indented JSON at path.
func Write(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &rec, nil
}
