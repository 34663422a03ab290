package catalog

import (
	"encoding/json"
	"reflect"
	"testing"

	"TrackLens/model"
)

func ptr[T any](v T) *T { return &v }

func fixtures() []*model.Track {
	return []*model.Track{
		{ID: "1", BPM: 95, Key: "A minor", Duration: 180.123, MoodTags: []string{"calm", "warm"},
			Instruments: []model.Instrument{{Name: "Piano", Confidence: 0.7}}},
		{ID: "2", BPM: 100, Key: "C major", Duration: 200.5, MoodTags: []string{"bright", "sharp"},
			Instruments: []model.Instrument{{Name: "Electric guitar", Confidence: 0.6}}},
		{ID: "3", BPM: 128, Key: "C major", Duration: 240, MoodTags: []string{"energetic", "sharp"},
			Instruments: []model.Instrument{{Name: "Drum kit", Confidence: 0.9}, {Name: "Piano", Confidence: 0.2}}},
		{ID: "4", BPM: 140, Key: "F# minor", Duration: 60, MoodTags: []string{"neutral"}},
		{ID: "5", BPM: 141, Key: "A minor", Duration: 30, MoodTags: []string{"warm"}},
	}
}

func ids(tracks []*model.Track) []string {
	out := []string{}
	for _, t := range tracks {
		out = append(out, t.ID)
	}
	return out
}

func TestApply(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filters", Filter{}, []string{"1", "2", "3", "4", "5"}},
		{"bpm range inclusive", Filter{MinBPM: ptr(100.0), MaxBPM: ptr(140.0)}, []string{"2", "3", "4"}},
		{"min only", Filter{MinBPM: ptr(130.0)}, []string{"4", "5"}},
		{"key", Filter{Key: ptr("C major")}, []string{"2", "3"}},
		{"instrument any of", Filter{Instruments: []string{"Piano", "Violin"}}, []string{"1", "3"}},
		{"mood any of", Filter{MoodTags: []string{"sharp", "neutral"}}, []string{"2", "3", "4"}},
		{"combined AND", Filter{Key: ptr("C major"), MoodTags: []string{"energetic"}}, []string{"3"}},
		{"no match", Filter{Key: ptr("B major")}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(Apply(fixtures(), tc.filter))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Apply = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (Filter{MinBPM: ptr(140.0), MaxBPM: ptr(100.0)}).Validate(); err == nil {
		t.Error("expected min > max error")
	}
	if err := (Filter{MinBPM: ptr(-1.0)}).Validate(); err == nil {
		t.Error("expected negative bound error")
	}
	if err := (Filter{Key: ptr("")}).Validate(); err == nil {
		t.Error("expected empty key error")
	}
	if err := (Filter{MinBPM: ptr(100.0), MaxBPM: ptr(100.0)}).Validate(); err != nil {
		t.Errorf("equal bounds should be valid: %v", err)
	}
}

func TestFilterJSON(t *testing.T) {
	var f Filter
	if err := json.Unmarshal([]byte(`{"min_bpm": 100, "mood_tags": ["calm"]}`), &f); err != nil {
		t.Fatal(err)
	}
	if f.MinBPM == nil || *f.MinBPM != 100 || f.MaxBPM != nil || f.IsEmpty() {
		t.Errorf("decoded filter = %+v", f)
	}
	if !(Filter{}).IsEmpty() {
		t.Error("zero filter should be empty")
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	got, err := json.Marshal(ComputeStats(nil))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"total_tracks":0,"avg_bpm":0,"common_keys":[],"common_moods":[],"total_duration":0}`
	if string(got) != want {
		t.Errorf("stats = %s, want %s", got, want)
	}
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(fixtures())
	if s.TotalTracks != 5 {
		t.Errorf("TotalTracks = %d", s.TotalTracks)
	}
	if s.AvgBPM != 120.8 {
		t.Errorf("AvgBPM = %v, want 120.8", s.AvgBPM)
	}
	if s.TotalDuration != 710.62 {
		t.Errorf("TotalDuration = %v, want 710.62", s.TotalDuration)
	}
	wantKeys := []string{"A minor", "C major", "F# minor"}
	if !reflect.DeepEqual(s.CommonKeys, wantKeys) {
		t.Errorf("CommonKeys = %v, want %v", s.CommonKeys, wantKeys)
	}
	// sharp=2, warm=2, then singles alphabetically
	wantMoods := []string{"sharp", "warm", "bright", "calm", "energetic"}
	if !reflect.DeepEqual(s.CommonMoods, wantMoods) {
		t.Errorf("CommonMoods = %v, want %v", s.CommonMoods, wantMoods)
	}
}
