package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TrackLens/cache"
	"TrackLens/config"
	"TrackLens/core/analyzer"
	"TrackLens/core/audio"
	"TrackLens/core/events"
	"TrackLens/core/instrument"
	"TrackLens/core/watcher"
	"TrackLens/db"
	"TrackLens/logger"
	"TrackLens/repository"
	"TrackLens/storage"

	"github.com/gorilla/mux"
)

// NewRouter registers every endpoint under cfg.APIPrefix. hub may be nil,
// in which case the event stream is not served.
func NewRouter(cfg *config.Config, h *APIHandler, hub *events.Hub) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware, corsMiddleware(cfg.CORSOrigins))

	api := router
	if cfg.APIPrefix != "" {
		api = router.PathPrefix(cfg.APIPrefix).Subrouter()
	}

	api.HandleFunc("/analyze", h.AnalyzeHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/analyze-batch", h.AnalyzeBatchHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/tracks", h.GetTracksHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/track/{id}", h.GetTrackHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/track/{id}", h.DeleteTrackHandler).Methods(http.MethodDelete)
	api.HandleFunc("/search", h.SearchHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	if hub != nil {
		api.HandleFunc("/ws/events", hub.ServeWS).Methods(http.MethodGet)
	}
	return router
}

// loadClassifier returns nil when no inference command is configured or it
// cannot be started; analysis then reports no instruments.
func loadClassifier(cfg *config.Config) instrument.Classifier {
	if cfg.ClassifierCommand == "" {
		logger.Warn("CLASSIFIER_COMMAND not set, instrument detection disabled")
		return nil
	}
	c, err := instrument.NewCommandClassifier(cfg.ClassifierCommand, cfg.ClassifierLabels, cfg.ClassifierTimeout)
	if err != nil {
		logger.Warn("failed to load instrument classifier", logger.ErrorField(err))
		return nil
	}
	return c
}

// NewAnalyzer builds the analysis pipeline shared by the server and the CLI.
func NewAnalyzer(cfg *config.Config, opts ...analyzer.Option) *analyzer.Analyzer {
	decoder := audio.NewCompositeDecoder(audio.NewFFmpegProcessor(cfg.FFmpegPath))
	opts = append([]analyzer.Option{analyzer.WithTempDir(cfg.TempDir)}, opts...)
	return analyzer.New(decoder, instrument.NewAdapter(loadClassifier(cfg)), opts...)
}

func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Start connects every backing service, serves HTTP and shuts down
// gracefully on SIGINT/SIGTERM or when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureDirExists(cfg.TempDir); err != nil {
		return err
	}

	// Connect to the database
	gdb, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	trackRepo := repository.NewGormTrackRepository(gdb)

	var stats *cache.StatsCache
	var redisPing func(context.Context) error
	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()
		stats = cache.NewStatsCache(cache.RedisClient, cfg.StatsCacheTTL)
		redisPing = cache.PingRedis
		logger.Info("connected to Redis", logger.String("addr", cfg.RedisAddr()))
	}

	var store storage.ObjectStore
	if cfg.MinioEnabled {
		ms, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return err
		}
		store = ms
	}

	hub := events.NewHub(cfg.CORSOrigins)
	go hub.Run()
	defer hub.Stop()

	an := NewAnalyzer(cfg,
		analyzer.WithRepository(trackRepo),
		analyzer.WithStatsInvalidator(stats),
		analyzer.WithObjectStore(store),
		analyzer.WithNotifier(hub),
	)

	if cfg.WatchDir != "" {
		w, err := watcher.New(cfg.WatchDir, an, analyzer.DefaultOptions)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("inbox watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	apiHandler := NewAPIHandler(an, trackRepo, stats, store, hub, redisPing, cfg)

	// 设置服务器超时
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           NewRouter(cfg, apiHandler, hub),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.String("addr", srv.Addr),
			logger.String("api_prefix", cfg.APIPrefix),
			logger.Bool("classifier", an.ClassifierAvailable()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待中断信号
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
