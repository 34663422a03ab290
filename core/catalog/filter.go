// Package catalog evaluates search filters and aggregate statistics over
// stored tracks.
package catalog

import (
	"errors"
	"fmt"

	"TrackLens/model"
)

// Filter narrows a catalog listing. Nil or empty fields impose no
// constraint; set fields are combined with AND.
type Filter struct {
	MinBPM      *float64 `json:"min_bpm,omitempty"`
	MaxBPM      *float64 `json:"max_bpm,omitempty"`
	Key         *string  `json:"key,omitempty"`
	Instruments []string `json:"instruments,omitempty"`
	MoodTags    []string `json:"mood_tags,omitempty"`
}

// IsEmpty reports whether the filter matches everything.
func (f Filter) IsEmpty() bool {
	return f.MinBPM == nil && f.MaxBPM == nil && f.Key == nil &&
		len(f.Instruments) == 0 && len(f.MoodTags) == 0
}

// Validate rejects bounds that can never match.
func (f Filter) Validate() error {
	var errs []error
	if f.MinBPM != nil && *f.MinBPM < 0 {
		errs = append(errs, fmt.Errorf("min_bpm must not be negative, got %v", *f.MinBPM))
	}
	if f.MaxBPM != nil && *f.MaxBPM < 0 {
		errs = append(errs, fmt.Errorf("max_bpm must not be negative, got %v", *f.MaxBPM))
	}
	if f.MinBPM != nil && f.MaxBPM != nil && *f.MinBPM > *f.MaxBPM {
		errs = append(errs, fmt.Errorf("min_bpm %v exceeds max_bpm %v", *f.MinBPM, *f.MaxBPM))
	}
	if f.Key != nil && *f.Key == "" {
		errs = append(errs, errors.New("key must not be empty when provided"))
	}
	return errors.Join(errs...)
}

// Match reports whether t satisfies every set constraint.
func (f Filter) Match(t *model.Track) bool {
	return f.MatchScalar(t) && f.MatchLists(t)
}

// MatchScalar checks the bpm bounds and key.
func (f Filter) MatchScalar(t *model.Track) bool {
	if f.MinBPM != nil && t.BPM < *f.MinBPM {
		return false
	}
	if f.MaxBPM != nil && t.BPM > *f.MaxBPM {
		return false
	}
	if f.Key != nil && t.Key != *f.Key {
		return false
	}
	return true
}

// MatchLists checks the any-of instrument and mood constraints.
func (f Filter) MatchLists(t *model.Track) bool {
	if len(f.Instruments) > 0 && !t.HasInstrument(f.Instruments...) {
		return false
	}
	if len(f.MoodTags) > 0 && !t.HasMood(f.MoodTags...) {
		return false
	}
	return true
}

// Apply returns the tracks matching f, preserving order.
func Apply(tracks []*model.Track, f Filter) []*model.Track {
	out := make([]*model.Track, 0, len(tracks))
	for _, t := range tracks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
