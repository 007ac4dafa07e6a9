package app

import (
	"math"
	"math/rand"
	"time"

	"github.com/guidoenr/beatscope/internal/decode"
)

// SynthConfig describes a generated click track.
type SynthConfig struct {
	SampleRate int
	Duration   time.Duration
	BPM        float64
	Seed       int64
}

// Synthesize renders a drum-like loop: a pitched-down kick on every beat, a
// noise snare on the off-beats and a quiet 440 Hz pad underneath.
func Synthesize(cfg SynthConfig) *decode.Buffer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	if cfg.BPM <= 0 {
		cfg.BPM = 120
	}
	rate := float64(cfg.SampleRate)
	total := int(cfg.Duration.Seconds() * rate)
	beatLen := int(rate * 60 / cfg.BPM)
	if beatLen < 1 {
		beatLen = 1
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	buf := decode.NewBuffer(cfg.SampleRate, total)
	for i := 0; i < total; i++ {
		t := float64(i) / rate
		v := 0.08 * math.Sin(2*math.Pi*440*t)

		pos := i % beatLen
		if pos < beatLen/4 {
			local := float64(pos) / rate
			env := math.Exp(-local * 18)
			freq := 55 + 60*math.Exp(-local*30)
			v += 0.9 * env * math.Sin(2*math.Pi*freq*local)
		}
		if (i/beatLen)%2 == 1 && pos < beatLen/8 {
			local := float64(pos) / rate
			v += 0.35 * math.Exp(-local*35) * (rng.Float64()*2 - 1)
		}

		buf.Append(float32(clamp(v, -1, 1)))
	}
	return buf
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
