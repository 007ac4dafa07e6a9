package analyzer

import (
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// Hann returns the symmetric Hann window of length n: 0.5*(1-cos(2πi/(n-1))).
// Both endpoints are zero. n must be at least 2.
func Hann(n int) ([]float64, error) {
	if n <= 1 {
		return nil, fmt.Errorf("%w (window length %d)", ErrInvalidFrameSize, n)
	}
	return window.Hann(n), nil
}

// ApplyHann windows frame in place.
func ApplyHann(frame []float64) error {
	w, err := Hann(len(frame))
	if err != nil {
		return err
	}
	applyWindow(frame, w)
	return nil
}

func applyWindow(frame, w []float64) {
	for i := range frame {
		frame[i] *= w[i]
	}
}
