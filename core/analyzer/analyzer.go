// Package analyzer turns one uploaded audio file into a stored track record.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"TrackLens/core/audio"
	"TrackLens/core/features"
	"TrackLens/core/instrument"
	"TrackLens/logger"
	"TrackLens/model"
	"TrackLens/repository"
	"TrackLens/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnsupportedFormat rejects uploads whose extension is not analyzable.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMissingFile rejects requests without a usable file.
	ErrMissingFile = errors.New("no file provided")
)

// AnalysisError wraps a server-side failure during analysis.
type AnalysisError struct {
	Op  string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed during %s: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Options selects the instrument classifiers for one request.
type Options = instrument.Options

// DefaultOptions enables every classifier.
var DefaultOptions = Options{UseYAMNet: true, UseOpenL3: true}

// Upload is one named audio stream.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// StatsInvalidator drops cached catalog statistics.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Notifier is told about every stored track.
type Notifier interface {
	TrackAnalyzed(track *model.Track)
}

// Analyzer runs the extraction pipeline. Only the decoder is mandatory;
// without a repository records are returned but not stored.
type Analyzer struct {
	decoder     audio.Decoder
	instruments *instrument.Adapter
	repo        repository.TrackRepository
	stats       StatsInvalidator
	store       storage.ObjectStore
	notifier    Notifier
	tempDir     string
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

func WithRepository(repo repository.TrackRepository) Option {
	return func(a *Analyzer) { a.repo = repo }
}

func WithStatsInvalidator(s StatsInvalidator) Option {
	return func(a *Analyzer) { a.stats = s }
}

func WithObjectStore(store storage.ObjectStore) Option {
	return func(a *Analyzer) { a.store = store }
}

func WithNotifier(n Notifier) Option {
	return func(a *Analyzer) { a.notifier = n }
}

// WithTempDir sets where uploads are spooled. Empty means os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Analyzer) { a.tempDir = dir }
}

// New builds an Analyzer. instruments may be nil.
func New(decoder audio.Decoder, instruments *instrument.Adapter, opts ...Option) *Analyzer {
	a := &Analyzer{
		decoder:     decoder,
		instruments: instruments,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ClassifierAvailable reports whether instrument detection can run.
func (a *Analyzer) ClassifierAvailable() bool {
	return a.instruments.Available()
}

// FormatOf returns the lowercased extension of filename without the dot.
func FormatOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Analyze validates, spools and analyzes one upload. Client errors are
// ErrUnsupportedFormat and ErrMissingFile; everything else is an
// *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, up Upload, opts Options) (*model.Track, error) {
	filename := filepath.Base(strings.TrimSpace(up.Filename))
	if up.Reader == nil || filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, ErrMissingFile
	}
	format := FormatOf(filename)
	if !model.IsSupportedFormat(format) {
		return nil, fmt.Errorf("%w: %q, allowed: %s", ErrUnsupportedFormat, filepath.Ext(filename), strings.Join(model.SupportedFormats, ", "))
	}

	tmp, err := os.CreateTemp(a.tempDir, "tracklens-*."+format)
	if err != nil {
		return nil, &AnalysisError{Op: "spool", Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove temp file", logger.String("path", tmpPath), logger.ErrorField(err))
		}
	}()

	size, err := io.Copy(tmp, up.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &AnalysisError{Op: "spool", Err: err}
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMissingFile, filename)
	}

	start := time.Now()
	track, err := a.extract(ctx, tmpPath, filename, format, size, opts)
	if err != nil {
		return nil, err
	}

	if err := a.commit(ctx, track, tmpPath); err != nil {
		return nil, err
	}

	logger.Info("track analyzed",
		logger.String("id", track.ID),
		logger.String("filename", track.Filename),
		logger.Float64("bpm", track.BPM),
		logger.String("key", track.Key),
		logger.Int("instruments", len(track.Instruments)),
		logger.Strings("mood_tags", track.MoodTags),
		logger.Duration("elapsed", time.Since(start)))
	return track, nil
}

// AnalyzeFile analyzes a file already on disk.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, opts Options) (*model.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, &AnalysisError{Op: "open", Err: err}
	}
	defer f.Close()
	return a.Analyze(ctx, Upload{Filename: filepath.Base(path), Reader: f}, opts)
}

// extract decodes once and runs every extractor concurrently.
func (a *Analyzer) extract(ctx context.Context, path, filename, format string, size int64, opts Options) (*model.Track, error) {
	buf, err := a.decoder.Decode(ctx, path)
	if err != nil {
		return nil, &AnalysisError{Op: "decode", Err: err}
	}
	if buf.Frames() == 0 || buf.SampleRate <= 0 {
		return nil, &AnalysisError{Op: "decode", Err: audio.ErrNoSamples}
	}
	mono := buf.Mono()

	var (
		tempo       features.Result[float64]
		key         features.Result[string]
		mood        features.Result[[]string]
		instruments features.Result[[]model.Instrument]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tempo = features.DetectTempo(mono, buf.SampleRate)
		return nil
	})
	g.Go(func() error {
		key = features.DetectKey(mono, buf.SampleRate)
		return nil
	})
	g.Go(func() error {
		mood = features.DetectMood(mono, buf.SampleRate)
		return nil
	})
	g.Go(func() error {
		samples16k := audio.Resample(mono, buf.SampleRate, audio.ClassifierSampleRate)
		instruments = a.instruments.Detect(gctx, samples16k, opts)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, &AnalysisError{Op: "extract", Err: err}
	}

	logFallback("tempo", filename, tempo.Fallback, tempo.Err)
	logFallback("key", filename, key.Fallback, key.Err)
	logFallback("mood", filename, mood.Fallback, mood.Err)
	logFallback("instruments", filename, instruments.Fallback, instruments.Err)

	track := &model.Track{
		ID:          uuid.NewString(),
		Filename:    filename,
		BPM:         tempo.Value,
		Key:         key.Value,
		Instruments: instruments.Value,
		MoodTags:    mood.Value,
		Duration:    buf.Duration(),
		FileSize:    size,
		Format:      format,
		AnalyzedAt:  a.now().UTC().Truncate(time.Millisecond),
	}
	if err := track.Validate(); err != nil {
		return nil, &AnalysisError{Op: "validate", Err: err}
	}
	return track, nil
}

// commit archives, persists and announces a track.
func (a *Analyzer) commit(ctx context.Context, track *model.Track, path string) error {
	if a.store != nil {
		if err := a.archive(ctx, track, path); err != nil {
			return &AnalysisError{Op: "archive", Err: err}
		}
	}

	if a.repo != nil {
		if err := a.repo.CreateTrack(ctx, track); err != nil {
			if track.ObjectKey != "" {
				if rerr := a.store.RemoveObject(context.WithoutCancel(ctx), track.ObjectKey); rerr != nil {
					logger.Warn("failed to remove orphaned archive object",
						logger.String("key", track.ObjectKey), logger.ErrorField(rerr))
				}
			}
			return &AnalysisError{Op: "persist", Err: err}
		}
		if a.stats != nil {
			if err := a.stats.Invalidate(ctx); err != nil {
				logger.Warn("failed to invalidate stats cache", logger.ErrorField(err))
			}
		}
	}

	if a.notifier != nil {
		a.notifier.TrackAnalyzed(track)
	}
	return nil
}

func (a *Analyzer) archive(ctx context.Context, track *model.Track, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := storage.ObjectKey(track.ID, track.Format)
	if err := a.store.PutObject(ctx, key, f, track.FileSize, storage.ContentType(track.Format)); err != nil {
		return err
	}
	track.ObjectKey = key
	return nil
}

func logFallback(feature, filename string, used bool, err error) {
	if !used {
		return
	}
	logger.Warn("feature extraction fell back to default",
		logger.String("feature", feature),
		logger.String("filename", filename),
		logger.ErrorField(err))
}
