package audio

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func TestFillAdvancesCursor(t *testing.T) {
	samples := []float32{1, 2, 3, 4, 5}
	s := NewPlaybackState(samples, 5)

	out := make([]float32, 2)
	if n := s.Fill(out); n != 2 || out[0] != 1 || out[1] != 2 {
		t.Fatalf("first fill n=%d out=%v", n, out)
	}
	if s.Elapsed() != 400*time.Millisecond {
		t.Fatalf("elapsed=%v want 400ms", s.Elapsed())
	}

	out = make([]float32, 4)
	if n := s.Fill(out); n != 3 {
		t.Fatalf("second fill n=%d want 3", n)
	}
	if out[2] != 5 || out[3] != 0 {
		t.Fatalf("expected zero padding after end, got %v", out)
	}
	if !s.Done() {
		t.Fatalf("expected state to be done")
	}
	if samples[0] != 1 {
		t.Fatalf("source buffer modified")
	}
}

func TestPauseSilencesOutput(t *testing.T) {
	s := NewPlaybackState([]float32{1, 1, 1, 1}, 4)
	if !s.TogglePause() {
		t.Fatalf("expected paused after toggle")
	}
	out := []float32{9, 9}
	if n := s.Fill(out); n != 0 || out[0] != 0 || out[1] != 0 {
		t.Fatalf("paused fill n=%d out=%v", n, out)
	}
	s.Advance(2)
	if s.Remaining() != 4 {
		t.Fatalf("advance while paused moved cursor: remaining=%d", s.Remaining())
	}
	s.TogglePause()
	s.Advance(10)
	if !s.Done() {
		t.Fatalf("advance past end should clamp to done, remaining=%d", s.Remaining())
	}
}

func TestSortDevices(t *testing.T) {
	devices := []Device{
		{Name: "b", HostAPI: "alsa"},
		{Name: "a", HostAPI: "pulse"},
		{Name: "a", HostAPI: "alsa"},
	}
	sortDevices(devices)
	if devices[0].Name != "a" || devices[0].HostAPI != "alsa" || devices[2].HostAPI != "pulse" {
		t.Fatalf("unexpected order %+v", devices)
	}
}

func TestInvalidStreamStateDetection(t *testing.T) {
	if errorsIsInvalidStreamState(nil) {
		t.Fatalf("nil error should not match")
	}
	if !errorsIsInvalidStreamState(errors.New("PaErrorCode -9986: stream is stopped")) {
		t.Fatalf("expected match")
	}
}

func TestMatchOutputDevice(t *testing.T) {
	devices := []*portaudio.DeviceInfo{
		{Name: "USB Mic", MaxInputChannels: 1},
		{Name: "HDA Intel PCH: ALC3246 Analog", MaxOutputChannels: 2},
	}
	dev, err := matchOutputDevice(devices, "alc3246")
	if err != nil || dev != devices[1] {
		t.Fatalf("dev=%v err=%v", dev, err)
	}
	if _, err := matchOutputDevice(devices, "USB"); err == nil {
		t.Fatalf("input-only device should not match")
	}
	_, err = matchOutputDevice(devices, "Focusrite Scarlett")
	if err == nil || !strings.Contains(err.Error(), `"Focusrite Scarlett"`) {
		t.Fatalf("error should keep the requested name, got %v", err)
	}
}
