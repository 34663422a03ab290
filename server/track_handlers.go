package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"TrackLens/core/analyzer"
	"TrackLens/core/catalog"
	"TrackLens/logger"
	"TrackLens/repository"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 32 << 20

const maxSearchBody = 1 << 20

// parseUpload reads the multipart form under the configured size limit.
// It writes the error response itself and returns false on failure.
func (h *APIHandler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d MB", h.cfg.MaxUploadMB))
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse multipart form: %v", err))
		return false
	}
	return true
}

// parseOptions reads use_yamnet and use_openl3, both defaulting to true.
func parseOptions(r *http.Request) (analyzer.Options, error) {
	var opts analyzer.Options
	var err error
	if opts.UseYAMNet, err = boolQuery(r, "use_yamnet", true); err != nil {
		return opts, err
	}
	if opts.UseOpenL3, err = boolQuery(r, "use_openl3", true); err != nil {
		return opts, err
	}
	return opts, nil
}

func boolQuery(r *http.Request, name string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q", name, raw)
	}
	return v, nil
}

// AnalyzeHandler analyzes the multipart field "file" and stores the result.
func (h *APIHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	track, err := h.analyzer.Analyze(r.Context(), analyzer.Upload{Filename: header.Filename, Reader: file}, opts)
	if err != nil {
		if isClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("analysis failed", logger.String("filename", header.Filename), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error analyzing track: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// errReader surfaces a failure to open one multipart part inside the batch.
type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// AnalyzeBatchHandler analyzes every multipart "files" part independently.
func (h *APIHandler) AnalyzeBatchHandler(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	uploads := make([]analyzer.Upload, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		var reader io.Reader
		f, err := fh.Open()
		if err != nil {
			reader = errReader{err: err}
		} else {
			opened = append(opened, f)
			reader = f
		}
		uploads = append(uploads, analyzer.Upload{Filename: fh.Filename, Reader: reader})
	}

	res := h.analyzer.AnalyzeBatch(r.Context(), uploads, opts)
	logger.Info("batch analyzed",
		logger.Int("total", res.Total),
		logger.Int("successful", res.Successful),
		logger.Int("failed", res.Failed))
	writeJSON(w, http.StatusOK, res)
}

// GetTracksHandler lists every stored track.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.ListTracks(r.Context())
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track by id.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.trackRepo.GetTrackByID(r.Context(), id)
	if errors.Is(err, repository.ErrTrackNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		logger.Error("failed to get track", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes a track and its archived original.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.trackRepo.DeleteTrack(r.Context(), id)
	if errors.Is(err, repository.ErrTrackNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		logger.Error("failed to delete track", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	if track.ObjectKey != "" && h.store != nil {
		if err := h.store.RemoveObject(r.Context(), track.ObjectKey); err != nil {
			logger.Warn("failed to remove archived upload", logger.String("key", track.ObjectKey), logger.ErrorField(err))
		}
	}
	if err := h.stats.Invalidate(r.Context()); err != nil {
		logger.Warn("failed to invalidate stats cache", logger.ErrorField(err))
	}
	if h.notifier != nil {
		h.notifier.TrackDeleted(id)
	}

	logger.Info("track deleted", logger.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Track deleted successfully"})
}

// SearchHandler filters tracks by a JSON body. Unknown fields are rejected.
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var filter catalog.Filter
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&filter); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid search filter: %v", err))
		return
	}
	if err := filter.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tracks, err := h.trackRepo.SearchTracks(r.Context(), filter)
	if err != nil {
		logger.Error("search failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to search tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// StatsHandler returns catalog statistics, served from Redis when cached.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if stats, ok, err := h.stats.Get(ctx); err != nil {
		logger.Warn("stats cache read failed", logger.ErrorField(err))
	} else if ok {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	tracks, err := h.trackRepo.ListTracks(ctx)
	if err != nil {
		logger.Error("failed to load tracks for stats", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	stats := catalog.ComputeStats(tracks)
	if err := h.stats.Set(ctx, stats); err != nil {
		logger.Warn("stats cache write failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, stats)
}
