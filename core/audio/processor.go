package audio

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoSamples is returned when a file decodes to an empty stream.
var ErrNoSamples = errors.New("audio stream contains no samples")

// Buffer holds decoded PCM normalised to [-1, 1], interleaved by channel.
type Buffer struct {
	Data       []float64
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the playing time in seconds at the native sample rate.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono averages all channels into a single channel.
func (b *Buffer) Mono() []float64 {
	frames := b.Frames()
	if b.Channels == 1 {
		out := make([]float64, frames)
		copy(out, b.Data)
		return out
	}
	out := make([]float64, frames)
	inv := 1.0 / float64(b.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * b.Channels
		for c := 0; c < b.Channels; c++ {
			sum += b.Data[base+c]
		}
		out[i] = sum * inv
	}
	return out
}

// Decoder turns an audio file on disk into PCM samples.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Buffer, error)
}

// CompositeDecoder decodes WAV natively and hands every other container,
// or a WAV the native reader rejects, to ffmpeg.
type CompositeDecoder struct {
	wav    *WAVDecoder
	ffmpeg *FFmpegProcessor
}

// NewCompositeDecoder creates the default decoder chain. ffmpeg may be nil,
// in which case only WAV input can be decoded.
func NewCompositeDecoder(ffmpeg *FFmpegProcessor) *CompositeDecoder {
	return &CompositeDecoder{wav: NewWAVDecoder(), ffmpeg: ffmpeg}
}

// Decode implements Decoder.
func (d *CompositeDecoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err := d.wav.Decode(ctx, path)
		if err == nil || d.ffmpeg == nil {
			return buf, err
		}
	}
	if d.ffmpeg == nil {
		return nil, errors.New("no decoder available for " + filepath.Ext(path))
	}
	return d.ffmpeg.Decode(ctx, path)
}
