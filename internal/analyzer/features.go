package analyzer

// Levels is a coarse bass/mid/treble readout of one spectrogram row.
type Levels struct {
	Bass   float64
	Mid    float64
	Treble float64
}

var (
	bassBand   = Band{Name: "bass", Min: 20, Max: 250}
	midBand    = Band{Name: "mid", Min: 250, Max: 2000}
	trebleBand = Band{Name: "treble", Min: 2000, Max: 8000}
)

// Levels averages row over fixed bass, mid and treble bands. Bands that do not
// fit the engine's bin layout read as zero.
func (e *Engine) Levels(row []float64) Levels {
	return Levels{
		Bass:   e.rowAverage(row, bassBand),
		Mid:    e.rowAverage(row, midBand),
		Treble: e.rowAverage(row, trebleBand),
	}
}

// Scale multiplies every level by gain and clamps to [0, 1].
func (l Levels) Scale(gain float64) Levels {
	return Levels{
		Bass:   clamp(l.Bass*gain, 0, 1),
		Mid:    clamp(l.Mid*gain, 0, 1),
		Treble: clamp(l.Treble*gain, 0, 1),
	}
}

func (e *Engine) rowAverage(row []float64, b Band) float64 {
	lo, hi, err := e.BinRange(b)
	if err != nil || hi > len(row) {
		return 0
	}
	return average(row[lo:hi])
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
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
