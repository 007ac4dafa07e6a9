package decode

import (
	"time"

	"github.com/go-audio/audio"
)

// Buffer owns a growable mono PCM stream. Consumers borrow it through Samples
// and must not write to the returned slice.
type Buffer struct {
	pcm audio.Float32Buffer
}

// NewBuffer returns an empty mono buffer at sampleRate with room for capacity samples.
func NewBuffer(sampleRate, capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		pcm: audio.Float32Buffer{
			Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:   make([]float32, 0, capacity),
		},
	}
}

// Append grows the buffer with samples.
func (b *Buffer) Append(samples ...float32) {
	b.pcm.Data = append(b.pcm.Data, samples...)
}

func (b *Buffer) Samples() []float32 { return b.pcm.Data }
func (b *Buffer) SampleRate() int    { return b.pcm.Format.SampleRate }
func (b *Buffer) Len() int           { return len(b.pcm.Data) }

// Duration is the playback length at the buffer's sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate() <= 0 {
		return 0
	}
	return time.Duration(int64(b.Len()) * int64(time.Second) / int64(b.SampleRate()))
}

// PCM exposes the buffer in go-audio form.
func (b *Buffer) PCM() *audio.Float32Buffer { return &b.pcm }
