package analyzer

import (
	"fmt"
	"sort"
)

// Empirical threshold coefficients. They were calibrated by ear on 44.1 kHz
// material with 2048-sample frames and have no statistical derivation;
// treat them as tunables.
const (
	ThresholdSlope     = -0.0000015
	ThresholdIntercept = 1.5142857
)

// Threshold returns the multiplier applied to the mean band energy.
func Threshold(variance float64, frames int) float64 {
	return ThresholdSlope*variance/float64(frames) + ThresholdIntercept
}

// BeatSet is a set of beat timestamps in microseconds.
type BeatSet map[int64]struct{}

func (s BeatSet) Add(us int64) { s[us] = struct{}{} }

func (s BeatSet) Contains(us int64) bool {
	_, ok := s[us]
	return ok
}

func (s BeatSet) Len() int { return len(s) }

// Merge adds every timestamp in other to s.
func (s BeatSet) Merge(other BeatSet) {
	for us := range other {
		s[us] = struct{}{}
	}
}

// Union returns a new set holding the timestamps of both sets.
func (s BeatSet) Union(other BeatSet) BeatSet {
	out := make(BeatSet, len(s)+len(other))
	out.Merge(s)
	out.Merge(other)
	return out
}

// Sorted returns the timestamps in ascending order.
func (s BeatSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for us := range s {
		out = append(out, us)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DetectBeats returns the timestamps of frames whose energy in b exceeds the
// variance-derived threshold times the mean energy.
func (e *Engine) DetectBeats(spec Spectrogram, b Band) (BeatSet, error) {
	energy, err := e.BandEnergy(spec, b)
	if err != nil {
		return nil, err
	}
	beats := make(BeatSet)
	if len(energy.Values) == 0 {
		return beats, nil
	}

	limit := Threshold(energy.Variance, len(energy.Values)) * energy.Mean
	for i, v := range energy.Values {
		if v > limit {
			beats.Add(e.Timestamp(i))
		}
	}
	return beats, nil
}

// DetectEach runs DetectBeats for every band, in order.
func (e *Engine) DetectEach(spec Spectrogram, bands ...Band) ([]BeatSet, error) {
	out := make([]BeatSet, len(bands))
	for i, b := range bands {
		beats, err := e.DetectBeats(spec, b)
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", b, err)
		}
		out[i] = beats
	}
	return out, nil
}

// DetectBands runs DetectBeats for every band and returns the union.
func (e *Engine) DetectBands(spec Spectrogram, bands ...Band) (BeatSet, error) {
	each, err := e.DetectEach(spec, bands...)
	if err != nil {
		return nil, err
	}
	return UnionAll(each...), nil
}

// UnionAll merges every set into a new one.
func UnionAll(sets ...BeatSet) BeatSet {
	out := make(BeatSet)
	for _, s := range sets {
		out.Merge(s)
	}
	return out
}
