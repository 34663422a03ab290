package features

import (
	"errors"
	"math"

	"TrackLens/core/audio"
)

// Mood vocabulary.
const (
	MoodBright     = "bright"
	MoodDark       = "dark"
	MoodEnergetic  = "energetic"
	MoodCalm       = "calm"
	MoodAggressive = "aggressive"
	MoodSmooth     = "smooth"
	MoodSharp      = "sharp"
	MoodWarm       = "warm"
)

const rolloffPercent = 0.85

// SpectralSummary holds the frame-averaged measurements behind mood tags.
type SpectralSummary struct {
	Centroid         float64 // Hz
	Rolloff          float64 // Hz
	ZeroCrossingRate float64
	RMS              float64
}

// DetectMood derives mood tags from spectral measurements. The result is
// never empty.
func DetectMood(samples []float64, sampleRate int) (res Result[[]string]) {
	defer guard(&res, []string{NeutralMood})

	summary, err := Summarize(samples, sampleRate)
	if err != nil {
		return fallback([]string{NeutralMood}, err)
	}
	return computed(MoodTags(summary))
}

// MoodTags maps a summary onto tags, in brightness, energy, texture,
// rolloff order.
func MoodTags(s SpectralSummary) []string {
	var moods []string

	if s.Centroid > 2000 {
		moods = append(moods, MoodBright)
	} else if s.Centroid < 1000 {
		moods = append(moods, MoodDark)
	}

	if s.RMS > 0.1 {
		moods = append(moods, MoodEnergetic)
	} else if s.RMS < 0.05 {
		moods = append(moods, MoodCalm)
	}

	if s.ZeroCrossingRate > 0.15 {
		moods = append(moods, MoodAggressive)
	} else if s.ZeroCrossingRate < 0.05 {
		moods = append(moods, MoodSmooth)
	}

	if s.Rolloff > 4000 {
		moods = append(moods, MoodSharp)
	} else {
		moods = append(moods, MoodWarm)
	}

	if len(moods) == 0 {
		return []string{NeutralMood}
	}
	return moods
}

// Summarize computes mean spectral centroid, rolloff, zero-crossing rate and
// RMS energy over FrameSize/HopSize frames.
func Summarize(samples []float64, sampleRate int) (SpectralSummary, error) {
	var s SpectralSummary
	if len(samples) == 0 {
		return s, audio.ErrNoSamples
	}
	spec, err := audio.STFT(samples, sampleRate, audio.FrameSize, audio.HopSize)
	if err != nil {
		return s, err
	}

	for _, row := range spec.Mags {
		c, r := centroidAndRolloff(spec, row)
		s.Centroid += c
		s.Rolloff += r
	}
	n := float64(len(spec.Mags))
	s.Centroid /= n
	s.Rolloff /= n

	frames := audio.Frames(samples, audio.FrameSize, audio.HopSize)
	for _, f := range frames {
		s.ZeroCrossingRate += zeroCrossingRate(f)
		s.RMS += rms(f)
	}
	s.ZeroCrossingRate /= float64(len(frames))
	s.RMS /= float64(len(frames))

	if math.IsNaN(s.Centroid) || math.IsNaN(s.Rolloff) || math.IsNaN(s.RMS) {
		return s, errors.New("spectral summary is undefined")
	}
	return s, nil
}

func centroidAndRolloff(spec *audio.Spectrogram, row []float64) (float64, float64) {
	var total, weighted float64
	for k, m := range row {
		total += m
		weighted += m * spec.BinFrequency(k)
	}
	if total <= 0 {
		return 0, 0
	}

	threshold := rolloffPercent * total
	var cum float64
	rolloff := spec.BinFrequency(len(row) - 1)
	for k, m := range row {
		cum += m
		if cum >= threshold {
			rolloff = spec.BinFrequency(k)
			break
		}
	}
	return weighted / total, rolloff
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

func rms(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
