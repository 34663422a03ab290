package features

import (
	"errors"
	"fmt"
	"math"

	"TrackLens/core/audio"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PitchClasses are the twelve tonal centres, index 0 = C.
var PitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Krumhansl key profiles, tonic at index 0.
var (
	MajorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	MinorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

const (
	chromaMinFreq = 32.70   // C1
	chromaMaxFreq = 4186.01 // C8
	tuningA4      = 440.0
)

var errNoTonalEnergy = errors.New("no tonal energy in chroma range")

// DetectKey estimates the musical key as "<PitchClass> <major|minor>".
func DetectKey(samples []float64, sampleRate int) (res Result[string]) {
	defer guard(&res, FallbackKey)

	chroma, err := Chroma(samples, sampleRate)
	if err != nil {
		return fallback(FallbackKey, err)
	}
	key, err := KeyFromChroma(chroma)
	if err != nil {
		return fallback(FallbackKey, err)
	}
	return computed(key)
}

// Chroma returns the time-averaged 12-bin pitch-class energy profile.
func Chroma(samples []float64, sampleRate int) ([12]float64, error) {
	var profile [12]float64
	spec, err := audio.STFT(samples, sampleRate, audio.FrameSize, audio.HopSize)
	if err != nil {
		return profile, err
	}

	// bin -> pitch class, -1 outside the chroma range
	classes := make([]int, spec.Bins())
	for k := range classes {
		classes[k] = pitchClassOf(spec.BinFrequency(k))
	}

	for _, row := range spec.Mags {
		for k, m := range row {
			if pc := classes[k]; pc >= 0 {
				profile[pc] += m * m
			}
		}
	}
	n := float64(len(spec.Mags))
	for i := range profile {
		profile[i] /= n
	}
	if floats.Sum(profile[:]) <= 0 {
		return profile, errNoTonalEnergy
	}
	return profile, nil
}

func pitchClassOf(freq float64) int {
	if freq < chromaMinFreq || freq > chromaMaxFreq {
		return -1
	}
	midi := int(math.Round(69 + 12*math.Log2(freq/tuningA4)))
	return ((midi % 12) + 12) % 12
}

// KeyFromChroma picks the strongest pitch class as tonic and decides the
// mode by correlating the profile with the rotated major and minor
// templates. Equal correlations resolve to major.
func KeyFromChroma(chroma [12]float64) (string, error) {
	keyIdx := floats.MaxIdx(chroma[:])

	major := rotate(MajorProfile, keyIdx)
	minor := rotate(MinorProfile, keyIdx)
	majorCorr := stat.Correlation(chroma[:], major[:], nil)
	minorCorr := stat.Correlation(chroma[:], minor[:], nil)
	if math.IsNaN(majorCorr) || math.IsNaN(minorCorr) {
		return "", fmt.Errorf("undefined correlation for chroma %v", chroma)
	}

	mode := "major"
	if minorCorr > majorCorr {
		mode = "minor"
	}
	return PitchClasses[keyIdx] + " " + mode, nil
}

// rotate shifts p right by n positions: out[i] = p[(i-n) mod 12].
func rotate(p [12]float64, n int) [12]float64 {
	var out [12]float64
	for i := range out {
		out[i] = p[((i-n)%12+12)%12]
	}
	return out
}
