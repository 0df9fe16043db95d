package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"heart-risk/internal/cfg"
	"heart-risk/internal/common"
	"heart-risk/internal/engine"
	"heart-risk/internal/metrics"
	"heart-risk/internal/server"
	"heart-risk/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine; the real environment still applies.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	eng, err := engine.Load(c.ModelPath, engineOptions(c, mw))
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("failed to load model artifact")
	}

	srvCfg := server.Config{
		Engine:         eng,
		Metrics:        mw,
		Gatherer:       prometheus.DefaultGatherer,
		Port:           c.HTTPPort,
		APIVersion:     c.APIVersion,
		MaxUploadBytes: c.MaxUploadBytes,
		ReportRowLimit: c.ReportRowLimit,
		RequestTimeout: c.RequestTimeout,
	}
	if store := initializeStorage(c); store != nil {
		defer store.Close()
		srvCfg.Store = store
	}

	srv := server.New(srvCfg)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	waitForShutdown(srv, c, errCh)
}

// engineOptions maps the settings onto engine construction options.
func engineOptions(c cfg.Settings, m engine.MetricsInterface) engine.Options {
	return engine.Options{
		DecisionThreshold: c.DecisionThreshold,
		Bands:             c.RiskBands,
		MaxConcurrency:    c.MaxConcurrency,
		Permutations:      c.Permutations,
		BackgroundLimit:   c.BackgroundLimit,
		Seed:              c.AttributionSeed,
		Metrics:           m,
	}
}

// setupLogging applies the configured level and format to the global logger.
func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.LogFormat == common.LogFormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// initializeStorage opens the prediction log if DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.StorageEnabled() {
		log.Info().Msg("DATA_PATH not set, prediction log disabled")
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Str("data_path", c.DataPath).Msg("cannot create data directory, continuing without persistence")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// waitForShutdown blocks until a signal or a server error, then drains
// in-flight requests within the shutdown timeout.
func waitForShutdown(srv *server.Server, c cfg.Settings, errCh <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("prediction server failed")
	}

	log.Info().Dur("timeout", c.ShutdownTimeout).Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
