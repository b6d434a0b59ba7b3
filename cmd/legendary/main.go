package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/api"
	"legendary-classifier/internal/cache"
	"legendary-classifier/internal/cfg"
	"legendary-classifier/internal/common"
	"legendary-classifier/internal/metrics"
	"legendary-classifier/internal/ml"
	"legendary-classifier/internal/storage"
	"legendary-classifier/internal/telemetry"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	zerolog.SetGlobalLevel(c.Level())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.InitTracer(ctx, telemetry.DefaultConfig(c.OTLPEndpoint))
	if err != nil {
		log.Warn().Err(err).Msg("Tracing initialization failed, continuing without tracing")
	}

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)

	artifacts := ml.LoadArtifacts(ml.ArtifactPaths{
		Model:             c.ModelPath,
		Scaler:            c.ScalerPath,
		FeatureImportance: c.FeatureImportancePath,
		TrainingData:      c.TrainingDataPath,
		BackgroundData:    c.BackgroundDataPath,
		ShapEnabled:       c.ShapEnabled,
	})
	mw.ModelLoadedSet(artifacts.Model != nil)

	predictionCache := initializeCache(ctx, c)
	store := initializeStorage(c)

	opts := []ml.Option{
		ml.WithMetrics(mw),
		ml.WithCache(predictionCache),
		ml.WithShapTimeout(c.ShapTimeout),
	}
	handlerOpts := []api.HandlerOption{
		api.WithMetrics(mw),
		api.WithRequestTimeout(c.RequestTimeout),
	}
	if store != nil {
		opts = append(opts, ml.WithHistory(&historyRecorder{store: store, metrics: mw}))
		handlerOpts = append(handlerOpts, api.WithHistory(store))
	}
	predictor := ml.NewPredictor(artifacts, opts...)

	health := predictor.Health()
	log.Info().
		Bool("model_loaded", health.ModelLoaded).
		Bool("scaler_loaded", health.ScalerLoaded).
		Bool("shap_available", health.ShapAvailable).
		Str("explanation_method", health.ExplanationMethod).
		Str("model_type", predictor.ModelType()).
		Msg("Predictor ready")

	server := api.NewServer(api.NewHandler(predictor, handlerOpts...), c.Port, api.RouterOptions{
		CORSOrigins:    c.CORSOrigins,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, server)

	if predictionCache != nil {
		if err := predictionCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close prediction cache")
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	if err := telemetry.Shutdown(context.Background(), tp); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}
	log.Info().Msg("shutdown complete")
}

// initializeCache builds the configured prediction cache, continuing
// without one when the backend is unavailable.
func initializeCache(ctx context.Context, c cfg.Settings) cache.Cache {
	pc, err := cache.New(ctx, cache.Options{
		Backend:   c.CacheBackend,
		Size:      c.CacheSize,
		TTL:       c.CacheTTL,
		RedisAddr: c.RedisAddr,
	})
	if err != nil {
		log.Warn().Err(err).Str("backend", c.CacheBackend).Msg("cache initialization failed, continuing without cache")
		return nil
	}
	return pc
}

// initializeStorage opens the history store when history is enabled
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.HistoryEnabled || c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// historyRecorder counts failed history writes before handing the error
// back to the predictor.
type historyRecorder struct {
	store   *storage.Store
	metrics *metrics.MetricsWrapper
}

func (h *historyRecorder) SavePrediction(result *ml.PredictionResult) error {
	err := h.store.SavePrediction(result)
	if err != nil {
		h.metrics.HistoryWriteErrorsInc()
	}
	return err
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *api.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Str("service", common.ServiceName).Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
}
