package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"TrackLens/core/catalog"
	"TrackLens/db"
	"TrackLens/model"

	"github.com/glebarez/sqlite"
)

func newTestRepo(t *testing.T) TrackRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return NewGormTrackRepository(gdb)
}

func sampleTrack(id string, bpm float64, key string, at time.Time) *model.Track {
	return &model.Track{
		ID:          id,
		Filename:    id + ".wav",
		BPM:         bpm,
		Key:         key,
		Instruments: []model.Instrument{{Name: "Piano", Confidence: 0.8}, {Name: "Violin", Confidence: 0.2}},
		MoodTags:    []string{"calm", "warm"},
		Duration:    12.5,
		FileSize:    2048,
		Format:      "wav",
		AnalyzedAt:  at,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	in := sampleTrack("a1", 123.05, "D major", at)
	if err := repo.CreateTrack(ctx, in); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	got, err := repo.GetTrackByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetTrackByID: %v", err)
	}
	if !got.AnalyzedAt.Equal(at) {
		t.Errorf("AnalyzedAt = %v, want %v", got.AnalyzedAt, at)
	}
	got.AnalyzedAt = in.AnalyzedAt
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, in)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	bad := sampleTrack("bad", 0, "C major", time.Now())
	if err := repo.CreateTrack(context.Background(), bad); err == nil {
		t.Fatal("expected validation error for zero bpm")
	}
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetTrackByID(context.Background(), "nope"); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("err = %v, want ErrTrackNotFound", err)
	}
}

func TestDeleteTrack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateTrack(ctx, sampleTrack("d1", 100, "C major", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.DeleteTrack(ctx, "d1")
	if err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	if deleted.ID != "d1" {
		t.Errorf("deleted id = %q", deleted.ID)
	}
	if _, err := repo.GetTrackByID(ctx, "d1"); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	if _, err := repo.DeleteTrack(ctx, "d1"); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("second delete: %v, want ErrTrackNotFound", err)
	}
}

func TestListAndSearch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tracks := []*model.Track{
		sampleTrack("t1", 90, "A minor", base),
		sampleTrack("t2", 120, "C major", base.Add(time.Second)),
		sampleTrack("t3", 140, "C major", base.Add(2*time.Second)),
	}
	tracks[2].MoodTags = []string{"energetic"}
	tracks[2].Instruments = []model.Instrument{{Name: "Drum kit", Confidence: 0.9}}
	for _, tr := range tracks {
		if err := repo.CreateTrack(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.ListTracks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := trackIDs(all); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Errorf("ListTracks = %v", got)
	}

	minBPM, maxBPM := 100.0, 140.0
	key := "C major"
	cases := []struct {
		name   string
		filter catalog.Filter
		want   []string
	}{
		{"empty", catalog.Filter{}, []string{"t1", "t2", "t3"}},
		{"bpm range", catalog.Filter{MinBPM: &minBPM, MaxBPM: &maxBPM}, []string{"t2", "t3"}},
		{"key", catalog.Filter{Key: &key}, []string{"t2", "t3"}},
		{"instrument", catalog.Filter{Instruments: []string{"Drum kit"}}, []string{"t3"}},
		{"mood and key", catalog.Filter{Key: &key, MoodTags: []string{"calm"}}, []string{"t2"}},
		{"no match", catalog.Filter{MoodTags: []string{"aggressive"}}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.SearchTracks(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			if ids := trackIDs(got); !reflect.DeepEqual(ids, tc.want) {
				t.Errorf("SearchTracks = %v, want %v", ids, tc.want)
			}
		})
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func trackIDs(tracks []*model.Track) []string {
	out := []string{}
	for _, t := range tracks {
		out = append(out, t.ID)
	}
	return out
}
