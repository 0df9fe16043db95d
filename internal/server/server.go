// Package server exposes the prediction engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"heart-risk/internal/common"
	"heart-risk/internal/engine"
	"heart-risk/internal/report"
	"heart-risk/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 30 * time.Second

// PredictionStore is the prediction log the server writes to. A nil store
// disables logging and the analytics endpoint reports nothing.
type PredictionStore interface {
	StorePrediction(rec storage.PredictionRecord) (storage.PredictionRecord, error)
	StorePredictions(recs []storage.PredictionRecord) error
	RecentPredictions(n int) ([]storage.PredictionRecord, error)
	RiskDistribution() (map[string]int, error)
	Count() (int, error)
}

// Recorder receives HTTP and storage metrics.
type Recorder interface {
	HTTPObserve(route string, code int, seconds float64)
	StoredInc(n int)
	StorageErrorsInc()
}

type nopRecorder struct{}

func (nopRecorder) HTTPObserve(string, int, float64) {}
func (nopRecorder) StoredInc(int)                    {}
func (nopRecorder) StorageErrorsInc()                {}

// Config holds the server dependencies. Engine is required.
type Config struct {
	Engine         *engine.Engine
	Store          PredictionStore
	Metrics        Recorder
	Gatherer       prometheus.Gatherer
	Port           int
	APIVersion     string
	MaxUploadBytes int64
	ReportRowLimit int
	RequestTimeout time.Duration
}

// Server is the HTTP front end of the engine.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
}

// New builds the router and the underlying http.Server.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = common.DefaultMaxUploadBytes
	}
	if cfg.ReportRowLimit <= 0 {
		cfg.ReportRowLimit = report.DefaultRowLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{cfg: cfg, router: chi.NewRouter()}
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout + 10*time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/health", s.handleHealth)
		r.Get("/model-info", s.handleModelInfo)
		r.Post("/predict", s.handlePredict)
		r.Post("/batch_predict", s.handleBatchPredict)
		r.Get("/analytics", s.handleAnalytics)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.server.Addr).
		Str("model_version", s.cfg.Engine.ModelVersion()).
		Bool("storage_enabled", s.cfg.Store != nil).
		Msg("starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
