// Package watcher ingests audio files dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"TrackLens/core/analyzer"
	"TrackLens/logger"
	"TrackLens/model"

	"github.com/fsnotify/fsnotify"
)

// Subdirectories receiving files after ingestion.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultSettle is how long a file must stay quiet before it is analyzed.
const DefaultSettle = 750 * time.Millisecond

// Ingestor analyzes one file on disk.
type Ingestor interface {
	AnalyzeFile(ctx context.Context, path string, opts analyzer.Options) (*model.Track, error)
}

// Watcher analyzes every supported file written into dir, then moves it to
// dir/processed or dir/failed.
type Watcher struct {
	dir    string
	ingest Ingestor
	opts   analyzer.Options
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	queue   chan string
	stop    chan struct{}
}

// New prepares dir and its outcome subdirectories.
func New(dir string, ingest Ingestor, opts analyzer.Options) (*Watcher, error) {
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create watch dir %s: %w", d, err)
		}
	}
	return &Watcher{
		dir:     dir,
		ingest:  ingest,
		opts:    opts,
		settle:  DefaultSettle,
		pending: make(map[string]*time.Timer),
		queue:   make(chan string, 64),
		stop:    make(chan struct{}),
	}, nil
}

// SetSettle overrides the quiet period before analysis.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Run watches until ctx is cancelled. Files already present at start are
// queued as well. Run may only be called once.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher failed: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher add failed: %w", err)
	}
	logger.Info("watching inbox", logger.String("dir", w.dir))

	defer close(w.stop)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx)
	}()

	w.scanExisting()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				wg.Wait()
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.eligible(event.Name) {
				w.schedule(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				wg.Wait()
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))
		case <-ctx.Done():
			w.stopTimers()
			wg.Wait()
			return nil
		}
	}
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("failed to scan inbox", logger.ErrorField(err))
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && w.eligible(path) {
			w.schedule(path)
		}
	}
}

// eligible ignores directories, hidden or partial files and unsupported
// extensions.
func (w *Watcher) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return false
	}
	return model.IsSupportedFormat(analyzer.FormatOf(name))
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.queue <- path:
		case <-w.stop:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// worker analyzes queued files one at a time.
func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case path := <-w.queue:
			w.process(ctx, path)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}

	track, err := w.ingest.AnalyzeFile(ctx, path, w.opts)
	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		logger.Warn("inbox file failed analysis", logger.String("path", path), logger.ErrorField(err))
	} else {
		logger.Info("inbox file ingested", logger.String("path", path), logger.String("id", track.ID))
	}

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Warn("failed to move inbox file", logger.String("path", path), logger.ErrorField(err))
	}
}
