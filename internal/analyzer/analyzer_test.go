package analyzer

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

func newTestEngine(t *testing.T, frameSize int) *Engine {
	t.Helper()
	e, err := New(Config{FrameSize: frameSize, SampleRate: DefaultSampleRate})
	if err != nil {
		t.Fatalf("New(%d): %v", frameSize, err)
	}
	return e
}

func sine(freq float64, rate, n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func argmax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{FrameSize: 1, SampleRate: 44100},
		{FrameSize: 0, SampleRate: 44100},
		{FrameSize: -8, SampleRate: 44100},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidFrameSize) {
			t.Fatalf("New(%+v) err=%v want ErrInvalidFrameSize", cfg, err)
		}
	}
	if _, err := New(Config{FrameSize: 2048}); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("expected ErrInvalidSampleRate, got %v", err)
	}
}

func TestNumBins(t *testing.T) {
	for n := 2; n <= 40; n++ {
		e := newTestEngine(t, n)
		if got, want := e.NumBins(), n/2+1; got != want {
			t.Fatalf("NumBins(N=%d)=%d want=%d", n, got, want)
		}
	}
}

func TestHannEndpointsAndSymmetry(t *testing.T) {
	for _, n := range []int{2, 3, 7, 64, 2048} {
		w, err := Hann(n)
		if err != nil {
			t.Fatalf("Hann(%d): %v", n, err)
		}
		if w[0] != 0 {
			t.Fatalf("Hann(%d)[0]=%g want 0", n, w[0])
		}
		if math.Abs(w[n-1]) > 1e-12 {
			t.Fatalf("Hann(%d)[N-1]=%g want 0", n, w[n-1])
		}
		for i := 0; i < n; i++ {
			if math.Abs(w[i]-w[n-1-i]) > 1e-12 {
				t.Fatalf("Hann(%d) asymmetric at %d: %g vs %g", n, i, w[i], w[n-1-i])
			}
		}
	}
}

func TestHannRejectsSingleSample(t *testing.T) {
	if _, err := Hann(1); !errors.Is(err, ErrInvalidFrameSize) {
		t.Fatalf("Hann(1) err=%v want ErrInvalidFrameSize", err)
	}
	if err := ApplyHann([]float64{1}); !errors.Is(err, ErrInvalidFrameSize) {
		t.Fatalf("ApplyHann on one sample err=%v", err)
	}
}

func TestSpectrogramDropsTrailingSamples(t *testing.T) {
	e := newTestEngine(t, 1024)
	samples := sine(1000, DefaultSampleRate, 5000, 0.5)
	full, err := e.Spectrogram(samples)
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	if full.Frames() != 5000/1024 {
		t.Fatalf("frames=%d want=%d", full.Frames(), 5000/1024)
	}

	tail := make([]float32, len(samples))
	copy(tail, samples)
	for i := 4096; i < len(tail); i++ {
		tail[i] = 1000
	}
	withTail, err := e.Spectrogram(tail)
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	for i := range full {
		for j := range full[i] {
			if full[i][j] != withTail[i][j] {
				t.Fatalf("trailing samples leaked into frame %d bin %d", i, j)
			}
		}
	}
}

func TestSpectrogramDoesNotModifySource(t *testing.T) {
	e := newTestEngine(t, 256)
	samples := sine(3000, DefaultSampleRate, 1024, 1)
	orig := make([]float32, len(samples))
	copy(orig, samples)
	if _, err := e.Spectrogram(samples); err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	for i := range samples {
		if samples[i] != orig[i] {
			t.Fatalf("source sample %d changed", i)
		}
	}
}

func TestPureToneLandsOnBin(t *testing.T) {
	e := newTestEngine(t, 2048)
	freq := 20.0 * DefaultSampleRate / 2048
	spec, err := e.Spectrogram(sine(freq, DefaultSampleRate, 2048, 1))
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	if spec.Frames() != 1 {
		t.Fatalf("frames=%d want 1", spec.Frames())
	}
	if got := argmax(spec[0]); got != 20 {
		t.Fatalf("peak bin=%d want 20", got)
	}
}

func TestSine440EndToEnd(t *testing.T) {
	e := newTestEngine(t, 2048)
	spec, err := e.Spectrogram(sine(440, DefaultSampleRate, 4096, 0.8))
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	if spec.Frames() != 2 {
		t.Fatalf("frames=%d want 2", spec.Frames())
	}
	want := int(math.Round(440 * 2048 / float64(DefaultSampleRate)))
	for i, row := range spec {
		if len(row) != e.NumBins() {
			t.Fatalf("row %d has %d bins want %d", i, len(row), e.NumBins())
		}
		if got := argmax(row); got != want {
			t.Fatalf("frame %d peak=%d want=%d", i, got, want)
		}
	}
}

func TestSpectrogramIsAmplitudeLinear(t *testing.T) {
	e := newTestEngine(t, 512)
	rng := rand.New(rand.NewSource(7))
	base := make([]float32, 2048)
	for i := range base {
		base[i] = float32(rng.Float64()*2 - 1)
	}
	a, err := e.Spectrogram(base)
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}

	for _, c := range []float64{0.5, 2, 3} {
		scaled := make([]float32, len(base))
		for i := range base {
			scaled[i] = float32(float64(base[i]) * c)
		}
		b, err := e.Spectrogram(scaled)
		if err != nil {
			t.Fatalf("Spectrogram: %v", err)
		}
		for i := range a {
			tol := 1e-5 * a[i][argmax(a[i])] * c
			for j := range a[i] {
				want := a[i][j] * c
				if math.Abs(b[i][j]-want) > tol {
					t.Fatalf("c=%g frame %d bin %d: got %g want %g", c, i, j, b[i][j], want)
				}
			}
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	samples := make([]float32, 256*37+13)
	for i := range samples {
		samples[i] = float32(rng.Float64() - 0.5)
	}
	seq, err := New(Config{FrameSize: 256, SampleRate: DefaultSampleRate, Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	par, err := New(Config{FrameSize: 256, SampleRate: DefaultSampleRate, Workers: 6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := seq.Spectrogram(samples)
	b, _ := par.Spectrogram(samples)
	if len(a) != len(b) {
		t.Fatalf("frame counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("frame %d bin %d differs", i, j)
			}
		}
	}
}

func TestEmptyInput(t *testing.T) {
	e := newTestEngine(t, 2048)
	spec, err := e.Spectrogram(nil)
	if err != nil {
		t.Fatalf("Spectrogram(nil): %v", err)
	}
	if spec.Frames() != 0 {
		t.Fatalf("frames=%d want 0", spec.Frames())
	}
	short, err := e.Spectrogram(make([]float32, 2047))
	if err != nil || short.Frames() != 0 {
		t.Fatalf("short buffer: frames=%d err=%v", short.Frames(), err)
	}
	beats, err := e.DetectBeats(spec, Band{Min: 60, Max: 130})
	if err != nil {
		t.Fatalf("DetectBeats on empty spectrogram: %v", err)
	}
	if beats.Len() != 0 {
		t.Fatalf("expected empty beat set, got %d", beats.Len())
	}
}

type fakeSource struct {
	samples []float32
	rate    int
}

func (f fakeSource) Samples() []float32 { return f.samples }
func (f fakeSource) SampleRate() int    { return f.rate }

func TestAnalyzeChecksSampleRate(t *testing.T) {
	e := newTestEngine(t, 2048)
	_, err := e.Analyze(fakeSource{samples: make([]float32, 4096), rate: 48000})
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Fatalf("err=%v want ErrSampleRateMismatch", err)
	}
	spec, err := e.Analyze(fakeSource{samples: make([]float32, 4096), rate: DefaultSampleRate})
	if err != nil || spec.Frames() != 2 {
		t.Fatalf("Analyze: frames=%d err=%v", spec.Frames(), err)
	}
}

func TestFrameTiming(t *testing.T) {
	e := newTestEngine(t, 2048)
	if got, want := e.FrameDuration(), time.Duration(46439909); got != want {
		t.Fatalf("FrameDuration=%d want=%d", got, want)
	}
	if got := e.Timestamp(1); got != 46439 {
		t.Fatalf("Timestamp(1)=%d want 46439", got)
	}
	if got := e.Timestamp(0); got != 0 {
		t.Fatalf("Timestamp(0)=%d want 0", got)
	}
	if got := e.FrameAt(3*e.FrameDuration() + time.Millisecond); got != 3 {
		t.Fatalf("FrameAt=%d want 3", got)
	}
	if got := e.FrameAt(-time.Second); got != 0 {
		t.Fatalf("FrameAt(negative)=%d want 0", got)
	}
}

func TestTransformPanicBecomesErrTransform(t *testing.T) {
	e, err := New(Config{FrameSize: 64, SampleRate: DefaultSampleRate, Workers: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var calls int64
	e.fft = func(x []float64) []complex128 {
		if atomic.AddInt64(&calls, 1)%3 == 0 {
			panic("out of memory")
		}
		return fft.FFTReal(x)
	}

	type result struct {
		spec Spectrogram
		err  error
	}
	done := make(chan result, 1)
	go func() {
		spec, err := e.Spectrogram(make([]float32, 64*40))
		done <- result{spec, err}
	}()

	select {
	case res := <-done:
		if !errors.Is(res.err, ErrTransform) {
			t.Fatalf("err=%v want ErrTransform", res.err)
		}
		if res.spec != nil {
			t.Fatalf("expected no spectrogram on failure, got %d frames", res.spec.Frames())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Spectrogram did not return after a worker panic")
	}
}

func TestTransformShortCoefficients(t *testing.T) {
	e := newTestEngine(t, 64)
	e.fft = func(x []float64) []complex128 { return make([]complex128, 3) }
	if _, err := e.Spectrogram(make([]float32, 128)); !errors.Is(err, ErrTransform) {
		t.Fatalf("err=%v want ErrTransform", err)
	}
}
