// Package instrument maps classifier output onto a ranked list of
// instruments.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"TrackLens/core/features"
	"TrackLens/model"
)

// ScoreThreshold is the averaged score a class must exceed to be reported.
const ScoreThreshold = 0.1

// Keywords selects instrument classes out of the classifier vocabulary.
var Keywords = []string{
	"piano", "guitar", "drum", "bass", "violin", "trumpet",
	"saxophone", "flute", "synthesizer", "keyboard", "organ",
	"percussion", "string", "brass", "woodwind", "electronic",
}

// ErrClassifierUnavailable is reported when no classifier was loaded.
var ErrClassifierUnavailable = errors.New("instrument classifier not loaded")

// Options toggles classifier use per request.
type Options struct {
	UseYAMNet bool
	UseOpenL3 bool
}

// Enabled reports whether either classifier flag is set.
func (o Options) Enabled() bool {
	return o.UseYAMNet || o.UseOpenL3
}

// Adapter wraps a Classifier. A nil classifier is valid and yields empty
// results.
type Adapter struct {
	classifier Classifier
}

func NewAdapter(c Classifier) *Adapter {
	return &Adapter{classifier: c}
}

// Available reports whether a classifier is loaded.
func (a *Adapter) Available() bool {
	return a != nil && a.classifier != nil
}

// Detect returns up to model.MaxInstruments instruments sorted by confidence.
// samples must be 16 kHz mono. Errors never escape; they are recorded on the
// result together with an empty list.
func (a *Adapter) Detect(ctx context.Context, samples []float64, opts Options) (res features.Result[[]model.Instrument]) {
	empty := []model.Instrument{}
	defer func() {
		if r := recover(); r != nil {
			res = features.Result[[]model.Instrument]{Value: empty, Fallback: true, Err: fmt.Errorf("classifier panic: %v", r)}
		}
	}()

	if !opts.Enabled() {
		return features.Result[[]model.Instrument]{Value: empty}
	}
	if !a.Available() {
		return features.Result[[]model.Instrument]{Value: empty, Fallback: true, Err: ErrClassifierUnavailable}
	}

	frames, err := a.classifier.Classify(ctx, samples)
	if err != nil {
		return features.Result[[]model.Instrument]{Value: empty, Fallback: true, Err: err}
	}
	return features.Result[[]model.Instrument]{Value: Rank(a.classifier.Labels(), frames)}
}

// Rank averages frame scores per class, keeps instrument classes above
// ScoreThreshold and returns them by descending confidence, ties keeping
// vocabulary order.
func Rank(labels []string, frames [][]float64) []model.Instrument {
	out := []model.Instrument{}
	if len(frames) == 0 {
		return out
	}

	means := make([]float64, len(labels))
	for _, row := range frames {
		for i := 0; i < len(row) && i < len(means); i++ {
			means[i] += row[i]
		}
	}

	for i, label := range labels {
		score := means[i] / float64(len(frames))
		if score <= ScoreThreshold {
			continue
		}
		if MatchKeyword(label) == "" {
			continue
		}
		if score > 1 {
			score = 1
		}
		out = append(out, model.Instrument{Name: label, Confidence: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > model.MaxInstruments {
		out = out[:model.MaxInstruments]
	}
	return out
}

// MatchKeyword returns the first keyword contained in label, or "".
func MatchKeyword(label string) string {
	lower := strings.ToLower(label)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
