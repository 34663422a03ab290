package audio

import "math"

// ClassifierSampleRate is the rate the instrument classifier expects.
const ClassifierSampleRate = 16000

// Resample converts mono samples from one rate to another with linear
// interpolation. Downsampling first applies a box low-pass whose width
// matches the decimation ratio to keep obvious aliasing out.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || len(samples) == 0 {
		return nil
	}
	if from == to {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	src := samples
	if to < from {
		src = boxFilter(samples, int(math.Round(float64(from)/float64(to))))
	}

	ratio := float64(from) / float64(to)
	n := int(math.Floor(float64(len(src)) / ratio))
	if n == 0 {
		n = 1
	}
	out := make([]float64, n)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = src[j]*(1-frac) + src[j+1]*frac
	}
	return out
}

// boxFilter is a centred moving average of the given width.
func boxFilter(x []float64, width int) []float64 {
	if width <= 1 {
		return x
	}
	out := make([]float64, len(x))
	half := width / 2
	var sum float64
	lo, hi := 0, -1
	for i := range x {
		wantLo := i - half
		if wantLo < 0 {
			wantLo = 0
		}
		wantHi := i + half
		if wantHi > len(x)-1 {
			wantHi = len(x) - 1
		}
		for hi < wantHi {
			hi++
			sum += x[hi]
		}
		for lo < wantLo {
			sum -= x[lo]
			lo++
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
