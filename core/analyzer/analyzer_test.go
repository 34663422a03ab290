package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"TrackLens/core/audio"
	"TrackLens/core/catalog"
	"TrackLens/core/instrument"
	"TrackLens/internal/testaudio"
	"TrackLens/logger"
	"TrackLens/model"
	"TrackLens/repository"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memRepo struct {
	mu        sync.Mutex
	tracks    map[string]*model.Track
	createErr error
}

func newMemRepo() *memRepo { return &memRepo{tracks: map[string]*model.Track{}} }

func (r *memRepo) CreateTrack(_ context.Context, t *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.tracks[t.ID] = t
	return nil
}

func (r *memRepo) GetTrackByID(_ context.Context, id string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tracks[id]; ok {
		return t, nil
	}
	return nil, repository.ErrTrackNotFound
}

func (r *memRepo) ListTracks(context.Context) ([]*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Track{}
	for _, t := range r.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) SearchTracks(ctx context.Context, f catalog.Filter) ([]*model.Track, error) {
	all, _ := r.ListTracks(ctx)
	return catalog.Apply(all, f), nil
}

func (r *memRepo) DeleteTrack(_ context.Context, id string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, repository.ErrTrackNotFound
	}
	delete(r.tracks, id)
	return t, nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

type memStore struct {
	objects map[string][]byte
	putErr  error
}

func (s *memStore) PutObject(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memStore) RemoveObject(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n++
	return nil
}

type recordingNotifier struct{ ids []string }

func (n *recordingNotifier) TrackAnalyzed(t *model.Track) { n.ids = append(n.ids, t.ID) }

type fakeClassifier struct {
	labels  []string
	frames  [][]float64
	gotLen  int
	callErr error
}

func (f *fakeClassifier) Labels() []string { return f.labels }

func (f *fakeClassifier) Classify(_ context.Context, samples []float64) ([][]float64, error) {
	f.gotLen = len(samples)
	return f.frames, f.callErr
}

type fixture struct {
	analyzer *Analyzer
	repo     *memRepo
	store    *memStore
	stats    *countingInvalidator
	notifier *recordingNotifier
	tempDir  string
}

func newFixture(t *testing.T, adapter *instrument.Adapter) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		store:    &memStore{objects: map[string][]byte{}},
		stats:    &countingInvalidator{},
		notifier: &recordingNotifier{},
		tempDir:  t.TempDir(),
	}
	f.analyzer = New(audio.NewCompositeDecoder(nil), adapter,
		WithRepository(f.repo),
		WithStatsInvalidator(f.stats),
		WithObjectStore(f.store),
		WithNotifier(f.notifier),
		WithTempDir(f.tempDir),
	)
	return f
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d entries", len(entries))
	}
}

func TestAnalyzeWAV(t *testing.T) {
	f := newFixture(t, nil)
	wav := testaudio.SineWAV(t, 440, 2, 22050)

	track, err := f.analyzer.Analyze(context.Background(), Upload{Filename: "Sine.WAV", Reader: bytes.NewReader(wav)}, DefaultOptions)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if math.Abs(track.Duration-2.0) > 0.05 {
		t.Errorf("Duration = %v, want ~2.0", track.Duration)
	}
	if track.Format != "wav" || track.Filename != "Sine.WAV" {
		t.Errorf("format/filename = %q / %q", track.Format, track.Filename)
	}
	if track.FileSize != int64(len(wav)) {
		t.Errorf("FileSize = %d, want %d", track.FileSize, len(wav))
	}
	if !(track.BPM > 0) || track.Key == "" || len(track.MoodTags) == 0 {
		t.Errorf("incomplete track %+v", track)
	}
	if track.Instruments == nil || len(track.Instruments) != 0 {
		t.Errorf("Instruments = %#v, want empty list without classifier", track.Instruments)
	}
	if track.AnalyzedAt.Location().String() != "UTC" || track.AnalyzedAt.Nanosecond()%1e6 != 0 {
		t.Errorf("AnalyzedAt = %v, want UTC millisecond precision", track.AnalyzedAt)
	}

	if _, err := f.repo.GetTrackByID(context.Background(), track.ID); err != nil {
		t.Errorf("track not stored: %v", err)
	}
	if f.stats.n != 1 {
		t.Errorf("stats invalidated %d times, want 1", f.stats.n)
	}
	if len(f.notifier.ids) != 1 || f.notifier.ids[0] != track.ID {
		t.Errorf("notifier ids = %v", f.notifier.ids)
	}
	if track.ObjectKey != "tracks/"+track.ID+".wav" || !bytes.Equal(f.store.objects[track.ObjectKey], wav) {
		t.Errorf("archive missing for key %q", track.ObjectKey)
	}
	assertTempDirEmpty(t, f.tempDir)
}

func TestAnalyzeWithClassifier(t *testing.T) {
	fc := &fakeClassifier{
		labels: []string{"Speech", "Piano", "Electric guitar"},
		frames: [][]float64{{0.9, 0.6, 0.2}, {0.8, 0.4, 0.3}},
	}
	f := newFixture(t, instrument.NewAdapter(fc))
	wav := testaudio.SineWAV(t, 440, 1, 22050)

	track, err := f.analyzer.Analyze(context.Background(), Upload{Filename: "a.wav", Reader: bytes.NewReader(wav)}, Options{UseYAMNet: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(track.Instruments) != 2 || track.Instruments[0].Name != "Piano" || track.Instruments[1].Name != "Electric guitar" {
		t.Errorf("Instruments = %+v", track.Instruments)
	}
	if math.Abs(float64(fc.gotLen)-float64(audio.ClassifierSampleRate)) > 2 {
		t.Errorf("classifier got %d samples, want ~%d (16 kHz)", fc.gotLen, audio.ClassifierSampleRate)
	}

	fc.gotLen = 0
	track, err = f.analyzer.Analyze(context.Background(), Upload{Filename: "b.wav", Reader: bytes.NewReader(wav)}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(track.Instruments) != 0 || fc.gotLen != 0 {
		t.Errorf("classifier should not run with both flags off")
	}
}

func TestAnalyzeClientErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		up   Upload
		want error
	}{
		{"unsupported extension", Upload{Filename: "notes.txt", Reader: strings.NewReader("x")}, ErrUnsupportedFormat},
		{"no extension", Upload{Filename: "track", Reader: strings.NewReader("x")}, ErrUnsupportedFormat},
		{"nil reader", Upload{Filename: "a.wav"}, ErrMissingFile},
		{"blank name", Upload{Filename: "  ", Reader: strings.NewReader("x")}, ErrMissingFile},
		{"empty body", Upload{Filename: "a.wav", Reader: strings.NewReader("")}, ErrMissingFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.analyzer.Analyze(ctx, tc.up, DefaultOptions)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			var ae *AnalysisError
			if errors.As(err, &ae) {
				t.Errorf("client error wrapped as AnalysisError: %v", err)
			}
		})
	}
	assertTempDirEmpty(t, f.tempDir)
	if len(f.repo.tracks) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestAnalyzeCorruptFile(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.analyzer.Analyze(context.Background(),
		Upload{Filename: "broken.wav", Reader: strings.NewReader("this is not audio at all")}, DefaultOptions)
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Op != "decode" {
		t.Fatalf("err = %v, want decode AnalysisError", err)
	}
	assertTempDirEmpty(t, f.tempDir)
	if f.stats.n != 0 || len(f.notifier.ids) != 0 {
		t.Error("failed analysis must not invalidate or notify")
	}
}

func TestAnalyzePersistFailureRemovesArchive(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.createErr = errors.New("disk full")
	wav := testaudio.SineWAV(t, 220, 1, 22050)

	_, err := f.analyzer.Analyze(context.Background(), Upload{Filename: "a.wav", Reader: bytes.NewReader(wav)}, DefaultOptions)
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Op != "persist" {
		t.Fatalf("err = %v, want persist AnalysisError", err)
	}
	if len(f.store.objects) != 0 {
		t.Errorf("archive object left behind: %v", f.store.objects)
	}
	assertTempDirEmpty(t, f.tempDir)
}

func TestAnalyzeArchiveFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.putErr = errors.New("bucket gone")
	wav := testaudio.SineWAV(t, 220, 1, 22050)

	_, err := f.analyzer.Analyze(context.Background(), Upload{Filename: "a.wav", Reader: bytes.NewReader(wav)}, DefaultOptions)
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Op != "archive" {
		t.Fatalf("err = %v, want archive AnalysisError", err)
	}
	if len(f.repo.tracks) != 0 {
		t.Error("track stored despite archive failure")
	}
}

func TestAnalyzeFile(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.analyzer.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), DefaultOptions); !errors.Is(err, ErrMissingFile) {
		t.Errorf("missing path err = %v", err)
	}

	path := filepath.Join(t.TempDir(), "disk.wav")
	testaudio.WriteSineWAV(t, path, 330, 1, 22050, 2)
	track, err := f.analyzer.AnalyzeFile(context.Background(), path, DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	if track.Filename != "disk.wav" {
		t.Errorf("Filename = %q", track.Filename)
	}
}

func TestAnalyzeWithoutRepository(t *testing.T) {
	a := New(audio.NewCompositeDecoder(nil), nil, WithTempDir(t.TempDir()))
	wav := testaudio.SineWAV(t, 440, 1, 22050)
	track, err := a.Analyze(context.Background(), Upload{Filename: "x.wav", Reader: bytes.NewReader(wav)}, DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	if track.ObjectKey != "" {
		t.Errorf("ObjectKey = %q without store", track.ObjectKey)
	}
	if a.ClassifierAvailable() {
		t.Error("no classifier configured")
	}
}

func TestAnalyzeBatch(t *testing.T) {
	f := newFixture(t, nil)
	good := testaudio.SineWAV(t, 440, 1, 22050)

	res := f.analyzer.AnalyzeBatch(context.Background(), []Upload{
		{Filename: "one.wav", Reader: bytes.NewReader(good)},
		{Filename: "corrupt.wav", Reader: strings.NewReader("garbage bytes")},
		{Filename: "two.wav", Reader: bytes.NewReader(good)},
	}, DefaultOptions)

	if res.Total != 3 || res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("counts = %d/%d/%d", res.Total, res.Successful, res.Failed)
	}
	if res.Errors[0].Filename != "corrupt.wav" || res.Errors[0].Status != StatusError || res.Errors[0].Error == "" {
		t.Errorf("error entry = %+v", res.Errors[0])
	}
	for _, r := range res.Results {
		if r.Status != StatusSuccess || r.Metadata == nil || r.Metadata.Filename != r.Filename {
			t.Errorf("result entry = %+v", r)
		}
	}
	if len(f.repo.tracks) != 2 {
		t.Errorf("stored %d tracks, want 2", len(f.repo.tracks))
	}
	assertTempDirEmpty(t, f.tempDir)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	f := newFixture(t, nil)
	res := f.analyzer.AnalyzeBatch(context.Background(), nil, DefaultOptions)
	if res.Total != 0 || res.Results == nil || res.Errors == nil {
		t.Errorf("empty batch = %+v", res)
	}
}

func TestFallbackIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetLogger(zap.New(core))
	defer logger.SetLogger(nil)

	f := newFixture(t, nil)
	wav := testaudio.SineWAV(t, 440, 1, 22050)
	if _, err := f.analyzer.Analyze(context.Background(), Upload{Filename: "a.wav", Reader: bytes.NewReader(wav)}, DefaultOptions); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, entry := range logs.FilterMessage("feature extraction fell back to default").All() {
		if entry.ContextMap()["feature"] == "instruments" {
			found = true
		}
	}
	if !found {
		t.Error("missing classifier fallback warning")
	}
}
