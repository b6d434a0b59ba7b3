package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"legendary-classifier/internal/cache"
	"legendary-classifier/internal/common"
	"legendary-classifier/internal/features"
)

var (
	ErrModelNotLoaded          = errors.New("model not loaded")
	ErrImportanceUnavailable   = errors.New("feature importance not available")
	ErrTrainingDataUnavailable = errors.New("training data not available")
	ErrComputation             = errors.New("computation failed")
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	ProbabilityObserve(float64)
	ExplanationMethodInc(method string)
	ShapFailuresInc()
	ShapLatencyObserve(float64)
	FallbackUseInc()
	SimilarityRequestsInc()
	CacheHitInc()
	CacheMissInc()
}

// PredictionResult is a classified and explained StatVector.
type PredictionResult struct {
	Prediction              int                 `json:"prediction"`
	ProbabilityLegendary    float64             `json:"probability_legendary"`
	ProbabilityNonLegendary float64             `json:"probability_non_legendary"`
	Confidence              string              `json:"confidence"`
	Stats                   features.StatVector `json:"stats"`
	BST                     int                 `json:"bst"`
	BSTTier                 string              `json:"bst_tier"`
	FeatureContributions    []Contribution      `json:"feature_contributions"`
	ExplanationMethod       string              `json:"explanation_method"`
	ModelType               string              `json:"model_type"`
}

type HealthStatus struct {
	Status                     string `json:"status"`
	ModelLoaded                bool   `json:"model_loaded"`
	ScalerLoaded               bool   `json:"scaler_loaded"`
	ShapAvailable              bool   `json:"shap_available"`
	FeatureImportanceAvailable bool   `json:"feature_importance_available"`
	ExplanationMethod          string `json:"explanation_method"`
}

// Predictor is the immutable inference context. It is built once at startup
// and is safe for concurrent use.
type Predictor struct {
	model      Model
	scaler     features.Transformer
	importance *ImportanceTable
	engine     *AttributionEngine
	dataset    []SimilarityRecord

	metrics     MetricsInterface
	cache       cache.Cache
	history     HistoryRecorder
	shapTimeout time.Duration
	tracer      trace.Tracer
}

type Option func(*Predictor)

func WithMetrics(m MetricsInterface) Option {
	return func(p *Predictor) { p.metrics = m }
}

func WithCache(c cache.Cache) Option {
	return func(p *Predictor) { p.cache = c }
}

func WithHistory(h HistoryRecorder) Option {
	return func(p *Predictor) { p.history = h }
}

// WithShapTimeout bounds each explainer call. Zero means no bound.
func WithShapTimeout(d time.Duration) Option {
	return func(p *Predictor) { p.shapTimeout = d }
}

func NewPredictor(a *Artifacts, opts ...Option) *Predictor {
	if a == nil {
		a = &Artifacts{}
	}
	p := &Predictor{
		model:       a.Model,
		importance:  a.Importance,
		dataset:     a.TrainingData,
		shapTimeout: 2 * time.Second,
		tracer:      otel.Tracer(common.TracerName),
	}
	// Keep the interface nil when no scaler was loaded
	if a.Scaler != nil {
		p.scaler = a.Scaler
	}
	if p.importance == nil && p.model != nil {
		p.importance = ExtractFeatureImportance(p.model)
	}
	for _, opt := range opts {
		opt(p)
	}

	var explainer Explainer
	if p.model != nil && a.Explainer != nil {
		explainer = a.Explainer
	}
	p.engine = NewAttributionEngine(explainer, p.shapTimeout, p.metrics)
	return p
}

func cacheKey(stats features.StatVector) string {
	return "predict:" + stats.Key()
}

// Predict classifies stats and explains the decision.
func (p *Predictor) Predict(ctx context.Context, stats features.StatVector) (result *PredictionResult, err error) {
	if p.model == nil {
		return nil, ErrModelNotLoaded
	}

	ctx, span := p.tracer.Start(ctx, "ml.predict", trace.WithAttributes(
		attribute.String("stats", stats.Key()),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Prediction panicked")
			result, err = nil, fmt.Errorf("%w: %v", ErrComputation, r)
		}
		if err != nil {
			if p.metrics != nil {
				p.metrics.PredictionFailuresInc()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	result, hit := p.cached(ctx, stats)
	if !hit {
		result, err = p.predict(ctx, stats)
		if err != nil {
			return nil, err
		}
		p.store(ctx, stats, result)
	}

	if p.history != nil {
		if err := p.history.SavePrediction(result); err != nil {
			log.Warn().Err(err).Msg("Failed to record prediction")
		}
	}
	if p.metrics != nil {
		p.metrics.PredictionsInc()
		p.metrics.ProbabilityObserve(result.ProbabilityLegendary)
		p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	span.SetAttributes(
		attribute.Int("prediction", result.Prediction),
		attribute.String("explanation.method", result.ExplanationMethod),
		attribute.Bool("cache.hit", hit),
	)
	return result, nil
}

func (p *Predictor) predict(ctx context.Context, stats features.StatVector) (*PredictionResult, error) {
	x, err := features.BuildVector(stats, p.scaler)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputation, err)
	}

	prediction, err := p.model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputation, err)
	}

	probLegendary := 0.0
	proba, ok, err := p.model.PredictProba(x)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrComputation, err)
	case ok:
		if len(proba) < 2 {
			return nil, fmt.Errorf("%w: model returned %d class probabilities", ErrComputation, len(proba))
		}
		probLegendary = proba[1]
	case prediction == 1:
		// Hard-label models only tell us the class
		probLegendary = 1.0
	}

	contributions, method := p.engine.Attribute(ctx, AttributionInput{
		Features:      x,
		Stats:         stats,
		Prediction:    prediction,
		ProbLegendary: probLegendary,
		Importance:    p.importance,
	})

	total := stats.Total()
	return &PredictionResult{
		Prediction:              prediction,
		ProbabilityLegendary:    probLegendary,
		ProbabilityNonLegendary: 1 - probLegendary,
		Confidence:              CalculateConfidence(probLegendary),
		Stats:                   stats,
		BST:                     total,
		BSTTier:                 features.BSTTier(total),
		FeatureContributions:    contributions,
		ExplanationMethod:       method,
		ModelType:               p.model.Type(),
	}, nil
}

func (p *Predictor) cached(ctx context.Context, stats features.StatVector) (*PredictionResult, bool) {
	if p.cache == nil {
		return nil, false
	}
	data, ok := p.cache.Get(ctx, cacheKey(stats))
	if ok {
		var result PredictionResult
		if err := json.Unmarshal(data, &result); err == nil {
			if p.metrics != nil {
				p.metrics.CacheHitInc()
			}
			return &result, true
		}
		log.Warn().Str("key", cacheKey(stats)).Msg("Discarding undecodable cache entry")
	}
	if p.metrics != nil {
		p.metrics.CacheMissInc()
	}
	return nil, false
}

func (p *Predictor) store(ctx context.Context, stats features.StatVector, result *PredictionResult) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode prediction for cache")
		return
	}
	if err := p.cache.Set(ctx, cacheKey(stats), data); err != nil {
		log.Warn().Err(err).Msg("Failed to cache prediction")
	}
}

// FeatureImportance returns the global ranking, most important first.
func (p *Predictor) FeatureImportance() (*ImportanceReport, error) {
	if p.model == nil {
		return nil, ErrModelNotLoaded
	}
	if p.importance == nil {
		return nil, ErrImportanceUnavailable
	}
	return &ImportanceReport{
		ModelType:      p.model.Type(),
		ImportanceType: p.importance.Kind(),
		Features:       p.importance.Ranked(),
	}, nil
}

// SimilarPokemon returns the closest records of the training set.
func (p *Predictor) SimilarPokemon(ctx context.Context, stats features.StatVector) (report *SimilarReport, err error) {
	if len(p.dataset) == 0 {
		return nil, ErrTrainingDataUnavailable
	}

	_, span := p.tracer.Start(ctx, "ml.similar")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Similarity search panicked")
			report, err = nil, fmt.Errorf("%w: %v", ErrComputation, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	similar, err := FindSimilar(stats, p.dataset, common.DefaultSimilarLimit)
	if err != nil {
		if errors.Is(err, ErrNoReferenceData) {
			return nil, ErrTrainingDataUnavailable
		}
		return nil, fmt.Errorf("%w: %w", ErrComputation, err)
	}
	if p.metrics != nil {
		p.metrics.SimilarityRequestsInc()
	}
	span.SetAttributes(attribute.Int("similar.count", len(similar)))
	return &SimilarReport{SimilarPokemon: similar, Count: len(similar)}, nil
}

func (p *Predictor) Health() HealthStatus {
	method := "fallback"
	if p.engine.HasExplainer() {
		method = MethodSHAP
	}
	return HealthStatus{
		Status:                     "healthy",
		ModelLoaded:                p.model != nil,
		ScalerLoaded:               p.scaler != nil,
		ShapAvailable:              p.engine.HasExplainer(),
		FeatureImportanceAvailable: p.importance != nil,
		ExplanationMethod:          method,
	}
}

// ModelType returns the loaded classifier family, or "" when degraded.
func (p *Predictor) ModelType() string {
	if p.model == nil {
		return ""
	}
	return p.model.Type()
}
