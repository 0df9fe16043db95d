package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"heart-risk/internal/common"
	"heart-risk/internal/engine"
	"heart-risk/internal/features"
	"heart-risk/internal/report"
	"heart-risk/internal/storage"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		APIVersion:   s.cfg.APIVersion,
		ModelVersion: s.cfg.Engine.ModelVersion(),
		ModelLoaded:  s.cfg.Engine.Ready(),
	}
	if !resp.ModelLoaded {
		resp.Status = "unavailable"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Engine.Ready() {
		renderError(w, r, http.StatusServiceUnavailable, engine.ErrNotReady.Error())
		return
	}
	render.JSON(w, r, s.cfg.Engine.Info())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var raw map[string]any
	if err := render.DecodeJSON(r.Body, &raw); err != nil {
		s.renderReadError(w, r, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if raw == nil {
		renderError(w, r, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.cfg.Engine.PredictOne(ctx, raw)
	if err != nil {
		renderEngineError(w, r, err)
		return
	}

	s.logPrediction(res)
	render.JSON(w, r, res)
}

func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	rows, err := readRows(r)
	if err != nil {
		s.renderReadError(w, r, err)
		return
	}
	if len(rows) == 0 {
		renderError(w, r, http.StatusBadRequest, "no rows to score")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	batch := s.cfg.Engine.PredictBatch(ctx, rows)
	if batch.Status == engine.StatusFailed {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: batch.SystemMessage, Kind: engine.KindModel})
		return
	}
	s.logBatch(batch)

	if format == report.FormatJSON {
		render.JSON(w, r, batch)
		return
	}

	rep := report.NewReporter(batch, s.cfg.ReportRowLimit)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.FileName(format)))
	w.WriteHeader(http.StatusOK)
	if err := rep.Render(w, format); err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID).Str("format", string(format)).Msg("failed to write batch report")
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	resp := AnalyticsResponse{
		RiskDistribution:  map[string]int{},
		RecentPredictions: []storage.PredictionRecord{},
	}
	if s.cfg.Store == nil {
		render.JSON(w, r, resp)
		return
	}
	resp.StorageEnabled = true

	var err error
	if resp.TotalPredictions, err = s.cfg.Store.Count(); err != nil {
		s.renderStorageError(w, r, err)
		return
	}
	if resp.RiskDistribution, err = s.cfg.Store.RiskDistribution(); err != nil {
		s.renderStorageError(w, r, err)
		return
	}
	if resp.RecentPredictions, err = s.cfg.Store.RecentPredictions(common.DefaultRecentPredictions); err != nil {
		s.renderStorageError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// readRows accepts a raw CSV body, a multipart upload with a "file" field,
// or a JSON array of objects.
func readRows(r *http.Request) ([]map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv", "application/csv":
		return features.ParseCSV(r.Body)
	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("read upload field \"file\": %w", err)
		}
		defer file.Close()
		return features.ParseCSV(file)
	default:
		var rows []map[string]any
		if err := render.DecodeJSON(r.Body, &rows); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return rows, nil
	}
}

func (s *Server) renderReadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		renderError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	renderError(w, r, http.StatusBadRequest, err.Error())
}

func (s *Server) renderStorageError(w http.ResponseWriter, r *http.Request, err error) {
	s.cfg.Metrics.StorageErrorsInc()
	log.Error().Err(err).Msg("analytics query failed")
	renderError(w, r, http.StatusInternalServerError, "prediction log unavailable")
}

func predictionRecord(res *engine.PredictionResult, source, batchID string) storage.PredictionRecord {
	return storage.PredictionRecord{
		Source:       source,
		BatchID:      batchID,
		Input:        res.Input,
		Prediction:   res.Prediction,
		Probability:  res.Probability,
		RiskLevel:    string(res.RiskLevel),
		ModelVersion: res.ModelVersion,
	}
}

// logPrediction and logBatch never fail the request; a storage error is
// logged and counted.
func (s *Server) logPrediction(res *engine.PredictionResult) {
	if s.cfg.Store == nil {
		return
	}
	if _, err := s.cfg.Store.StorePrediction(predictionRecord(res, storage.SourceSingle, "")); err != nil {
		s.cfg.Metrics.StorageErrorsInc()
		log.Error().Err(err).Msg("failed to log prediction")
		return
	}
	s.cfg.Metrics.StoredInc(1)
}

func (s *Server) logBatch(b *engine.BatchResult) {
	if s.cfg.Store == nil || b.Succeeded == 0 {
		return
	}
	recs := make([]storage.PredictionRecord, 0, b.Succeeded)
	for _, o := range b.Rows {
		if o.OK() {
			recs = append(recs, predictionRecord(o.Result, storage.SourceBatch, b.ID))
		}
	}
	if err := s.cfg.Store.StorePredictions(recs); err != nil {
		s.cfg.Metrics.StorageErrorsInc()
		log.Error().Err(err).Str("batch_id", b.ID).Int("rows", len(recs)).Msg("failed to log batch predictions")
		return
	}
	s.cfg.Metrics.StoredInc(len(recs))
}
