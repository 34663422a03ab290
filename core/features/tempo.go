package features

import (
	"errors"
	"fmt"
	"math"

	"TrackLens/core/audio"
)

const (
	minTempo     = 30.0
	maxTempo     = 300.0
	priorTempo   = 120.0
	priorOctaves = 1.0
	topDB        = 80.0
)

var errNoOnsets = errors.New("no rhythmic onsets detected")

// DetectTempo estimates the global tempo in BPM from mono samples.
func DetectTempo(samples []float64, sampleRate int) (res Result[float64]) {
	defer guard(&res, FallbackBPM)

	bpm, err := estimateTempo(samples, sampleRate)
	if err != nil {
		return fallback(FallbackBPM, err)
	}
	return computed(bpm)
}

func estimateTempo(samples []float64, sampleRate int) (float64, error) {
	if len(samples) == 0 {
		return 0, audio.ErrNoSamples
	}
	spec, err := audio.STFT(samples, sampleRate, audio.FrameSize, audio.HopSize)
	if err != nil {
		return 0, err
	}

	env := onsetEnvelope(spec)
	frameRate := spec.FrameRate()

	lagMin := int(math.Ceil(60 * frameRate / maxTempo))
	lagMax := int(math.Floor(60 * frameRate / minTempo))
	if lagMin < 1 {
		lagMin = 1
	}
	if lagMax > len(env)-1 {
		lagMax = len(env) - 1
	}
	if lagMax < lagMin {
		return 0, fmt.Errorf("signal too short for tempo estimation: %d onset frames", len(env))
	}

	bestLag, bestScore := 0, 0.0
	for lag := lagMin; lag <= lagMax; lag++ {
		var ac float64
		for t := 0; t+lag < len(env); t++ {
			ac += env[t] * env[t+lag]
		}
		bpm := 60 * frameRate / float64(lag)
		score := ac * tempoPrior(bpm)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 || bestScore <= 1e-9 {
		return 0, errNoOnsets
	}
	return 60 * frameRate / float64(bestLag), nil
}

// tempoPrior is a log-normal weight centred on priorTempo.
func tempoPrior(bpm float64) float64 {
	z := math.Log2(bpm/priorTempo) / priorOctaves
	return math.Exp(-0.5 * z * z)
}

// onsetEnvelope is the positive spectral flux of the dB spectrogram, averaged
// over frequency bins.
func onsetEnvelope(spec *audio.Spectrogram) []float64 {
	db := make([][]float64, len(spec.Mags))
	peak := math.Inf(-1)
	for i, row := range spec.Mags {
		db[i] = make([]float64, len(row))
		for k, m := range row {
			v := 10 * math.Log10(math.Max(m*m, 1e-10))
			db[i][k] = v
			if v > peak {
				peak = v
			}
		}
	}
	floor := peak - topDB
	for _, row := range db {
		for k := range row {
			if row[k] < floor {
				row[k] = floor
			}
		}
	}

	env := make([]float64, len(db))
	for i := 1; i < len(db); i++ {
		var flux float64
		for k := range db[i] {
			if d := db[i][k] - db[i-1][k]; d > 0 {
				flux += d
			}
		}
		env[i] = flux / float64(len(db[i]))
	}
	return env
}
