package params

import "math"

// Parameters shapes how spectrogram rows turn into on-screen bar heights.
type Parameters struct {
	// Gain maps raw magnitudes onto the unit range.
	Gain float64
	// Attack and Release are the per-60fps-frame smoothing factors for
	// rising and falling bars.
	Attack  float64
	Release float64
	// PeakDecay is how fast peak markers fall, per 60fps frame.
	PeakDecay float64
	// IndicatorHold keeps the beat indicator lit after a beat, in seconds.
	IndicatorHold float64

	Bars      []float64
	Peaks     []float64
	Indicator float64
}

// Defaults returns calm defaults tuned for 2048-sample frames.
func Defaults() Parameters {
	return Parameters{
		Gain:          1.0 / 120.0,
		Attack:        0.75,
		Release:       0.35,
		PeakDecay:     0.02,
		IndicatorHold: 0.12,
	}
}

// ApplyFrame blends the target bar levels into the smoothed state. levels are
// already normalized to [0, 1].
func (p *Parameters) ApplyFrame(levels []float64, beat bool, delta float64) {
	if len(p.Bars) != len(levels) {
		p.Bars = make([]float64, len(levels))
		p.Peaks = make([]float64, len(levels))
	}
	steps := delta * 60
	attack := 1 - math.Pow(1-p.Attack, steps)
	release := 1 - math.Pow(1-p.Release, steps)

	for i, target := range levels {
		target = clamp(target, 0, 1)
		factor := release
		if target > p.Bars[i] {
			factor = attack
		}
		p.Bars[i] = lerp(p.Bars[i], target, factor)

		p.Peaks[i] -= p.PeakDecay * steps
		if p.Bars[i] > p.Peaks[i] {
			p.Peaks[i] = p.Bars[i]
		}
		if p.Peaks[i] < 0 {
			p.Peaks[i] = 0
		}
	}

	if beat {
		p.Indicator = p.IndicatorHold
	} else {
		p.Indicator = math.Max(0, p.Indicator-delta)
	}
}

// BeatLit reports whether the beat indicator should be drawn.
func (p *Parameters) BeatLit() bool {
	return p.Indicator > 0
}

// Normalize scales raw magnitudes by Gain into [0, 1].
func (p *Parameters) Normalize(raw []float64, out []float64) []float64 {
	if cap(out) < len(raw) {
		out = make([]float64, len(raw))
	}
	out = out[:len(raw)]
	for i, v := range raw {
		out[i] = clamp(v*p.Gain, 0, 1)
	}
	return out
}

func lerp(current, target, factor float64) float64 {
	return current*(1-factor) + target*factor
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
