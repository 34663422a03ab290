package analyzer

import (
	"context"

	"TrackLens/logger"
	"TrackLens/model"
)

// Batch item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BatchSuccess is one analyzed file in a batch.
type BatchSuccess struct {
	Filename string       `json:"filename"`
	Status   string       `json:"status"`
	Metadata *model.Track `json:"metadata"`
}

// BatchFailure is one rejected or failed file in a batch.
type BatchFailure struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []BatchSuccess `json:"results"`
	Errors     []BatchFailure `json:"errors"`
}

// AnalyzeBatch analyzes uploads one at a time. A failing file is recorded
// and the batch continues; earlier successes stay stored.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, uploads []Upload, opts Options) *BatchResult {
	res := &BatchResult{
		Total:   len(uploads),
		Results: []BatchSuccess{},
		Errors:  []BatchFailure{},
	}
	for _, up := range uploads {
		track, err := a.Analyze(ctx, up, opts)
		if err != nil {
			logger.Warn("batch item failed", logger.String("filename", up.Filename), logger.ErrorField(err))
			res.Errors = append(res.Errors, BatchFailure{Filename: up.Filename, Status: StatusError, Error: err.Error()})
			continue
		}
		res.Results = append(res.Results, BatchSuccess{Filename: up.Filename, Status: StatusSuccess, Metadata: track})
	}
	res.Successful = len(res.Results)
	res.Failed = len(res.Errors)
	return res
}
