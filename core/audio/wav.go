package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// WAVDecoder reads PCM WAV files without shelling out.
type WAVDecoder struct{}

func NewWAVDecoder() *WAVDecoder {
	return &WAVDecoder{}
}

// Decode implements Decoder.
func (d *WAVDecoder) Decode(_ context.Context, path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid PCM wav file", path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples from %s: %w", path, err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, ErrNoSamples
	}

	channels := pcm.Format.NumChannels
	rate := pcm.Format.SampleRate
	if channels <= 0 || rate <= 0 {
		return nil, fmt.Errorf("invalid wav header: %d channels at %d Hz", channels, rate)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = pcm.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
	}

	data := make([]float64, len(pcm.Data))
	if bitDepth == 8 {
		// 8-bit PCM is unsigned with a 128 offset.
		for i, v := range pcm.Data {
			data[i] = float64(v-128) / 128
		}
	} else {
		scale := float64(int64(1) << uint(bitDepth-1))
		for i, v := range pcm.Data {
			data[i] = float64(v) / scale
		}
	}

	return &Buffer{Data: data, Channels: channels, SampleRate: rate}, nil
}
