package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxInstruments caps the ranked instrument list stored on a track.
const MaxInstruments = 10

// Supported upload formats, lowercase and without the leading dot.
var SupportedFormats = []string{"wav", "mp3", "flac", "m4a", "ogg"}

// IsSupportedFormat reports whether format (without dot) may be analyzed.
func IsSupportedFormat(format string) bool {
	format = strings.ToLower(format)
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Instrument is one detected instrument class and its averaged score.
type Instrument struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Track is the persisted analysis result for one uploaded file.
type Track struct {
	ID          string       `json:"id" gorm:"primaryKey;size:36"`
	Filename    string       `json:"filename" gorm:"size:512;not null"`
	BPM         float64      `json:"bpm" gorm:"column:bpm;not null;index"`
	Key         string       `json:"key" gorm:"size:16;not null;index"`
	Instruments []Instrument `json:"instruments" gorm:"serializer:json;type:text"`
	MoodTags    []string     `json:"mood_tags" gorm:"serializer:json;type:text"`
	Duration    float64      `json:"duration" gorm:"not null"`
	FileSize    int64        `json:"file_size" gorm:"not null"`
	Format      string       `json:"format" gorm:"size:8;not null"`
	ObjectKey   string       `json:"-" gorm:"size:255"` // archive location, empty when archiving is off
	AnalyzedAt  time.Time    `json:"analyzed_at" gorm:"not null;index"`
}

// TableName returns the table name for GORM.
func (Track) TableName() string {
	return "tracks"
}

// HasInstrument reports whether any detected instrument carries one of names.
func (t *Track) HasInstrument(names ...string) bool {
	for _, inst := range t.Instruments {
		for _, n := range names {
			if inst.Name == n {
				return true
			}
		}
	}
	return false
}

// HasMood reports whether the track is tagged with one of tags.
func (t *Track) HasMood(tags ...string) bool {
	for _, m := range t.MoodTags {
		for _, tag := range tags {
			if m == tag {
				return true
			}
		}
	}
	return false
}

// Validate enforces the record invariants before a track is stored.
func (t *Track) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if t.Filename == "" {
		errs = append(errs, errors.New("filename is required"))
	}
	if !(t.BPM > 0) {
		errs = append(errs, fmt.Errorf("bpm must be positive, got %v", t.BPM))
	}
	if t.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if !(t.Duration > 0) {
		errs = append(errs, fmt.Errorf("duration must be positive, got %v", t.Duration))
	}
	if t.FileSize <= 0 {
		errs = append(errs, fmt.Errorf("file_size must be positive, got %d", t.FileSize))
	}
	if !IsSupportedFormat(t.Format) || t.Format != strings.ToLower(t.Format) {
		errs = append(errs, fmt.Errorf("unsupported format %q", t.Format))
	}
	if len(t.MoodTags) == 0 {
		errs = append(errs, errors.New("mood_tags must not be empty"))
	}
	if len(t.Instruments) > MaxInstruments {
		errs = append(errs, fmt.Errorf("at most %d instruments allowed, got %d", MaxInstruments, len(t.Instruments)))
	}
	for i, inst := range t.Instruments {
		if inst.Confidence < 0 || inst.Confidence > 1 {
			errs = append(errs, fmt.Errorf("instrument %q confidence %v out of [0,1]", inst.Name, inst.Confidence))
		}
		if i > 0 && inst.Confidence > t.Instruments[i-1].Confidence {
			errs = append(errs, errors.New("instruments must be sorted by confidence descending"))
			break
		}
	}
	if t.AnalyzedAt.IsZero() {
		errs = append(errs, errors.New("analyzed_at is required"))
	}
	return errors.Join(errs...)
}
