package analyzer

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// DefaultFrameSize is the number of samples fed to each transform.
	DefaultFrameSize = 2048
	// DefaultSampleRate is the mono rate the decoder resamples to.
	DefaultSampleRate = 44_100
)

var (
	ErrInvalidFrameSize   = errors.New("analyzer: frame size must be greater than 1")
	ErrInvalidSampleRate  = errors.New("analyzer: sample rate must be positive")
	ErrInvalidBand        = errors.New("analyzer: invalid frequency band")
	ErrSampleRateMismatch = errors.New("analyzer: source sample rate does not match engine")
	ErrTransform          = errors.New("analyzer: transform failed")
)

// Spectrogram holds one magnitude vector per frame in chronological order.
type Spectrogram [][]float64

// Frames returns the number of rows.
func (s Spectrogram) Frames() int { return len(s) }

// Source is anything that can lend the engine a mono sample buffer.
type Source interface {
	Samples() []float32
	SampleRate() int
}

// Config controls Engine construction.
type Config struct {
	FrameSize  int
	SampleRate int
	// Workers bounds the transform pool. Zero means GOMAXPROCS.
	Workers int
}

// Engine turns a sample buffer into a spectrogram and band-limited beat sets.
// It keeps no state between calls beyond its configuration.
type Engine struct {
	frameSize  int
	sampleRate int
	numBins    int
	workers    int
	interval   time.Duration
	window     []float64
	fft        func([]float64) []complex128
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.FrameSize <= 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidFrameSize, cfg.FrameSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSampleRate, cfg.SampleRate)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	window, err := Hann(cfg.FrameSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		frameSize:  cfg.FrameSize,
		sampleRate: cfg.SampleRate,
		numBins:    cfg.FrameSize/2 + 1,
		workers:    cfg.Workers,
		interval:   time.Duration(int64(cfg.FrameSize) * int64(time.Second) / int64(cfg.SampleRate)),
		window:     window,
		fft:        fft.FFTReal,
	}, nil
}

func (e *Engine) FrameSize() int  { return e.frameSize }
func (e *Engine) SampleRate() int { return e.sampleRate }
func (e *Engine) NumBins() int    { return e.numBins }

// FrameDuration is the wall-clock span of one spectrogram row.
func (e *Engine) FrameDuration() time.Duration { return e.interval }

// FrameAt maps elapsed playback time to a spectrogram row index.
func (e *Engine) FrameAt(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / e.interval)
}

// Timestamp returns the start of frame in whole microseconds.
func (e *Engine) Timestamp(frame int) int64 {
	return int64(frame) * int64(e.interval) / 1000
}

// BinIndex maps a frequency to its (floored) bin index.
func (e *Engine) BinIndex(hz float64) int {
	return int(math.Floor(e.binPosition(hz)))
}

// Analyze computes the spectrogram of src after checking its rate.
func (e *Engine) Analyze(src Source) (Spectrogram, error) {
	if src.SampleRate() != e.sampleRate {
		return nil, fmt.Errorf("%w: source %d Hz, engine %d Hz", ErrSampleRateMismatch, src.SampleRate(), e.sampleRate)
	}
	return e.Spectrogram(src.Samples())
}

// Spectrogram slices samples into non-overlapping frames and returns one
// magnitude vector per frame. Trailing samples shorter than a frame are dropped.
// samples is never modified.
func (e *Engine) Spectrogram(samples []float32) (Spectrogram, error) {
	duration := len(samples) / e.frameSize
	out := make(Spectrogram, duration)
	if duration == 0 {
		return out, nil
	}

	numWorkers := e.workers
	if numWorkers > duration {
		numWorkers = duration
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	jobs := make(chan int, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scratch := make([]float64, e.frameSize)
			for i := range jobs {
				row, err := e.transform(samples[i*e.frameSize:(i+1)*e.frameSize], scratch)
				if err != nil {
					errOnce.Do(func() { firstErr = fmt.Errorf("frame %d: %w", i, err) })
					continue
				}
				out[i] = row
			}
		}()
	}

	for i := 0; i < duration; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// transform copies frame into scratch, windows it and returns bin magnitudes.
func (e *Engine) transform(frame []float32, scratch []float64) (row []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			row = nil
			err = fmt.Errorf("%w: %v", ErrTransform, r)
		}
	}()

	for i, v := range frame {
		scratch[i] = float64(v)
	}
	applyWindow(scratch, e.window)

	coeffs := e.fft(scratch)
	if len(coeffs) < e.numBins {
		return nil, fmt.Errorf("%w: got %d coefficients, want %d", ErrTransform, len(coeffs), e.numBins)
	}

	row = make([]float64, e.numBins)
	for j := range row {
		row[j] = cmag(coeffs[j])
	}
	return row, nil
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}
