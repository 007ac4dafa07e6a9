package audio

import (
	"sync"
	"time"
)

// PlaybackState is the cursor shared by the output callback and the render
// loop. It borrows samples read-only.
type PlaybackState struct {
	mu         sync.Mutex
	samples    []float32
	sampleRate int
	pos        int
	paused     bool
}

// NewPlaybackState starts a cursor at the beginning of samples.
func NewPlaybackState(samples []float32, sampleRate int) *PlaybackState {
	return &PlaybackState{samples: samples, sampleRate: sampleRate}
}

// Fill copies the next len(out) samples into out and advances the cursor.
// Past the end, or while paused, out is zero-filled. It returns the number of
// real samples written.
func (s *PlaybackState) Fill(out []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if !s.paused {
		n = copy(out, s.samples[s.pos:])
		s.pos += n
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// Advance moves the cursor forward by n samples without producing output.
func (s *PlaybackState) Advance(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || n <= 0 {
		return
	}
	s.pos += n
	if s.pos > len(s.samples) {
		s.pos = len(s.samples)
	}
}

// Elapsed is the playback time covered by the cursor.
func (s *PlaybackState) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(s.pos) * int64(time.Second) / int64(s.sampleRate))
}

// Remaining returns the number of samples not yet played.
func (s *PlaybackState) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples) - s.pos
}

// Done reports whether every sample has been consumed.
func (s *PlaybackState) Done() bool {
	return s.Remaining() == 0
}

// TogglePause flips the paused flag and returns the new value.
func (s *PlaybackState) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

func (s *PlaybackState) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *PlaybackState) SampleRate() int { return s.sampleRate }
