// Package testaudio writes synthetic WAV fixtures for tests.
package testaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteSineWAV writes a 16-bit PCM sine at half scale.
func WriteSineWAV(t testing.TB, path string, freq, seconds float64, rate, channels int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	frames := int(seconds * float64(rate))
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// SineWAV returns the bytes of a mono sine fixture.
func SineWAV(t testing.TB, freq, seconds float64, rate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	WriteSineWAV(t, path, freq, seconds, rate, 1)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
