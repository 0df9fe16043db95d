package server

import (
	"errors"
	"net/http"
	"time"

	"heart-risk/internal/engine"
	"heart-risk/internal/features"
	"heart-risk/internal/storage"

	"github.com/go-chi/render"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error      string                `json:"error"`
	Kind       string                `json:"kind,omitempty"`
	Violations *features.SchemaError `json:"violations,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	APIVersion   string    `json:"api_version"`
	ModelVersion string    `json:"model_version,omitempty"`
	ModelLoaded  bool      `json:"model_loaded"`
}

// AnalyticsResponse is the body of GET /analytics.
type AnalyticsResponse struct {
	StorageEnabled    bool                       `json:"storage_enabled"`
	TotalPredictions  int                        `json:"total_predictions"`
	RiskDistribution  map[string]int             `json:"risk_distribution"`
	RecentPredictions []storage.PredictionRecord `json:"recent_predictions"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// renderEngineError maps a PredictOne failure to a status code: schema
// errors are the caller's fault, cancellation means the request ran out of
// time, everything else is a server fault.
func renderEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := engine.ErrorKind(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind}

	status := http.StatusInternalServerError
	switch kind {
	case engine.KindSchema:
		status = http.StatusBadRequest
		var serr *features.SchemaError
		if errors.As(err, &serr) {
			resp.Violations = serr
		}
	case engine.KindCanceled:
		status = http.StatusServiceUnavailable
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}
