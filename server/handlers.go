package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"TrackLens/cache"
	"TrackLens/config"
	"TrackLens/core/analyzer"
	"TrackLens/logger"
	"TrackLens/repository"
	"TrackLens/storage"
)

// DeleteNotifier is told about removed tracks.
type DeleteNotifier interface {
	TrackDeleted(id string)
}

// APIHandler 处理所有API请求
type APIHandler struct {
	analyzer  *analyzer.Analyzer
	trackRepo repository.TrackRepository
	stats     *cache.StatsCache
	store     storage.ObjectStore
	notifier  DeleteNotifier
	redisPing func(ctx context.Context) error
	cfg       *config.Config
}

// NewAPIHandler 创建新的API处理器. stats, store, notifier and redisPing may
// be nil.
func NewAPIHandler(
	an *analyzer.Analyzer,
	trackRepo repository.TrackRepository,
	stats *cache.StatsCache,
	store storage.ObjectStore,
	notifier DeleteNotifier,
	redisPing func(ctx context.Context) error,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		analyzer:  an,
		trackRepo: trackRepo,
		stats:     stats,
		store:     store,
		notifier:  notifier,
		redisPing: redisPing,
		cfg:       cfg,
	}
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Redis      string `json:"redis"`
	Classifier string `json:"classifier"`
}

// HealthHandler always answers 200; degraded dependencies show up in the body.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Redis: "disabled", Classifier: "unavailable"}
	if err := h.trackRepo.Ping(ctx); err != nil {
		logger.Warn("database health check failed", logger.ErrorField(err))
		resp.Database = "error"
		resp.Status = "degraded"
	}
	if h.redisPing != nil {
		resp.Redis = "ok"
		if err := h.redisPing(ctx); err != nil {
			logger.Warn("redis health check failed", logger.ErrorField(err))
			resp.Redis = "error"
			resp.Status = "degraded"
		}
	}
	if h.analyzer.ClassifierAvailable() {
		resp.Classifier = "loaded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// isClientError reports whether err should map to 400.
func isClientError(err error) bool {
	return errors.Is(err, analyzer.ErrUnsupportedFormat) || errors.Is(err, analyzer.ErrMissingFile)
}
