// Package decode turns audio files into a mono float32 Buffer at a fixed rate.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/go-audio/wav"
)

var (
	ErrUnsupportedFormat = errors.New("decode: unsupported audio format")
	ErrInvalidFile       = errors.New("decode: invalid audio file")
)

// resampleQuality is beep's interpolation window; 4 is its documented default.
const resampleQuality = 4

const chunkSize = 512

// File decodes the file at path and resamples it to sampleRate.
func File(path string, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decode: sample rate must be positive (got %d)", sampleRate)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		defer f.Close()
		buf, err := WAV(f, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return buf, nil
	case ".mp3":
		// MP3 closes f through the beep streamer.
		buf, err := MP3(f, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return buf, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// WAV decodes a PCM WAV stream, mixes it down to mono and resamples it.
func WAV(r io.ReadSeeker, sampleRate int) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	channels := int(dec.NumChans)
	if pcm.Format != nil && pcm.Format.NumChannels > 0 {
		channels = pcm.Format.NumChannels
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidFile)
	}
	srcRate := int(dec.SampleRate)
	if srcRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidFile, srcRate)
	}

	depth := int(dec.BitDepth)
	scale := float32(1)
	offset := float32(0)
	switch {
	case depth == 8:
		// 8-bit WAV is unsigned.
		scale = 1.0 / 128
		offset = 128
	case depth > 8:
		scale = 1.0 / float32(int64(1)<<(depth-1))
	}

	frames := len(pcm.Data) / channels
	mono := NewBuffer(srcRate, frames)
	for i := 0; i < frames; i++ {
		sum := float32(0)
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += (float32(pcm.Data[base+ch]) - offset) * scale
		}
		mono.Append(sum / float32(channels))
	}

	return Resample(mono, sampleRate)
}

// MP3 decodes an MP3 stream, mixes it down to mono and resamples it. rc is
// closed before returning.
func MP3(rc io.ReadCloser, sampleRate int) (*Buffer, error) {
	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if int(format.SampleRate) != sampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(sampleRate), streamer)
	}

	out := NewBuffer(sampleRate, streamer.Len())
	if err := drain(src, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resample converts buf to sampleRate. buf is returned untouched when the
// rates already match.
func Resample(buf *Buffer, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 || buf.SampleRate() <= 0 {
		return nil, fmt.Errorf("decode: cannot resample %d Hz to %d Hz", buf.SampleRate(), sampleRate)
	}
	if buf.SampleRate() == sampleRate {
		return buf, nil
	}

	src := &monoStreamer{data: buf.Samples()}
	resampler := beep.Resample(resampleQuality, beep.SampleRate(buf.SampleRate()), beep.SampleRate(sampleRate), src)

	capacity := int(int64(buf.Len()) * int64(sampleRate) / int64(buf.SampleRate()))
	out := NewBuffer(sampleRate, capacity)
	if err := drain(resampler, out); err != nil {
		return nil, err
	}
	return out, nil
}

// drain reads s to exhaustion and appends the channel average to out.
func drain(s beep.Streamer, out *Buffer) error {
	chunk := make([][2]float64, chunkSize)
	for {
		n, ok := s.Stream(chunk)
		for i := 0; i < n; i++ {
			out.Append(float32((chunk[i][0] + chunk[i][1]) / 2))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}

// monoStreamer plays a mono slice on both beep channels.
type monoStreamer struct {
	data []float32
	pos  int
}

func (m *monoStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if m.pos >= len(m.data) {
		return 0, false
	}
	for n < len(samples) && m.pos < len(m.data) {
		v := float64(m.data[m.pos])
		samples[n][0] = v
		samples[n][1] = v
		n++
		m.pos++
	}
	return n, true
}

func (m *monoStreamer) Err() error { return nil }
