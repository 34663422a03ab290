package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analysis frame geometry shared by the feature extractors.
const (
	FrameSize = 2048
	HopSize   = 512
)

// Spectrogram is a magnitude STFT: Mags[frame][bin], bins 0..FFTSize/2.
type Spectrogram struct {
	Mags       [][]float64
	SampleRate int
	FFTSize    int
	Hop        int
}

// BinFrequency returns the centre frequency of bin k in Hz.
func (s *Spectrogram) BinFrequency(k int) float64 {
	return float64(k) * float64(s.SampleRate) / float64(s.FFTSize)
}

// Bins returns the number of frequency bins per frame.
func (s *Spectrogram) Bins() int {
	return s.FFTSize/2 + 1
}

// FrameRate is the number of spectrogram frames per second.
func (s *Spectrogram) FrameRate() float64 {
	return float64(s.SampleRate) / float64(s.Hop)
}

// HannWindow returns a periodic Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Frames slices x into centred, zero-padded frames of size n every hop samples.
func Frames(x []float64, n, hop int) [][]float64 {
	if len(x) == 0 || n <= 0 || hop <= 0 {
		return nil
	}
	pad := n / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)

	count := 1 + (len(padded)-n)/hop
	frames := make([][]float64, count)
	for i := range frames {
		frames[i] = padded[i*hop : i*hop+n]
	}
	return frames
}

// STFT computes the magnitude spectrogram of mono samples.
func STFT(x []float64, sampleRate, n, hop int) (*Spectrogram, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	frames := Frames(x, n, hop)
	if len(frames) == 0 {
		return nil, ErrNoSamples
	}

	fft := fourier.NewFFT(n)
	win := HannWindow(n)
	windowed := make([]float64, n)
	coeffs := make([]complex128, n/2+1)

	mags := make([][]float64, len(frames))
	for i, frame := range frames {
		for j := range windowed {
			windowed[j] = frame[j] * win[j]
		}
		coeffs = fft.Coefficients(coeffs, windowed)
		row := make([]float64, len(coeffs))
		for k, c := range coeffs {
			row[k] = cmplx.Abs(c)
		}
		mags[i] = row
	}

	return &Spectrogram{Mags: mags, SampleRate: sampleRate, FFTSize: n, Hop: hop}, nil
}
