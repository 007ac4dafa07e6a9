package analyzer

import (
	"fmt"
	"math"
)

// Band is a half-open frequency range [Min, Max) in Hz.
type Band struct {
	Name string
	Min  float64
	Max  float64
}

func (b Band) String() string {
	if b.Name == "" {
		return fmt.Sprintf("%g-%g Hz", b.Min, b.Max)
	}
	return fmt.Sprintf("%s %g-%g Hz", b.Name, b.Min, b.Max)
}

// Energy is the per-frame average magnitude over a band plus its statistics.
type Energy struct {
	Values   []float64
	Mean     float64
	Variance float64
}

// BinRange maps b onto [lo, hi) bin indices and checks it is non-empty and in bounds.
func (e *Engine) BinRange(b Band) (lo, hi int, err error) {
	if !finite(b.Min) || !finite(b.Max) || b.Min < 0 || b.Max <= b.Min {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidBand, b)
	}
	// compare before converting so huge edges cannot overflow int
	if e.binPosition(b.Max) >= float64(e.numBins+1) {
		return 0, 0, fmt.Errorf("%w: %s exceeds %d bins", ErrInvalidBand, b, e.numBins)
	}
	lo = e.BinIndex(b.Min)
	hi = e.BinIndex(b.Max)
	switch {
	case lo < 0 || hi > e.numBins:
		return 0, 0, fmt.Errorf("%w: %s exceeds %d bins", ErrInvalidBand, b, e.numBins)
	case lo >= hi:
		return 0, 0, fmt.Errorf("%w: %s is narrower than one bin (%.2f Hz)", ErrInvalidBand, b, e.binWidth())
	}
	return lo, hi, nil
}

func (e *Engine) binPosition(hz float64) float64 {
	return hz * float64(e.frameSize) / float64(e.sampleRate)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// BandEnergy reduces every row of spec to the average magnitude over b.
func (e *Engine) BandEnergy(spec Spectrogram, b Band) (Energy, error) {
	lo, hi, err := e.BinRange(b)
	if err != nil {
		return Energy{}, err
	}
	if len(spec) == 0 {
		return Energy{}, nil
	}

	width := float64(hi - lo)
	values := make([]float64, len(spec))
	total := 0.0
	for i, row := range spec {
		if len(row) < hi {
			return Energy{}, fmt.Errorf("%w: frame %d has %d bins, band needs %d", ErrInvalidBand, i, len(row), hi)
		}
		sum := 0.0
		for _, mag := range row[lo:hi] {
			sum += mag
		}
		values[i] = sum / width
		total += values[i]
	}

	frames := float64(len(values))
	mean := total / frames
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}

	return Energy{
		Values:   values,
		Mean:     mean,
		Variance: variance / frames,
	}, nil
}

func (e *Engine) binWidth() float64 {
	return float64(e.sampleRate) / float64(e.frameSize)
}
