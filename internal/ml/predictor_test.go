package ml

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legendary-classifier/internal/cache"
	"legendary-classifier/internal/features"
)

var (
	mewtwo  = features.StatVector{HP: 106, Attack: 110, Defense: 90, SpAttack: 154, SpDefense: 90, Speed: 130}
	rattata = features.StatVector{HP: 30, Attack: 56, Defense: 35, SpAttack: 25, SpDefense: 35, Speed: 72}
)

// bstModel is legendary above a BST of 500 on unscaled stats.
func bstModel() *LogisticRegression {
	return &LogisticRegression{Weights: []float64{0.02, 0.02, 0.02, 0.02, 0.02, 0.02}, Intercept: -10}
}

type stubModel struct {
	predictErr error
	proba      []float64
	panicMsg   string
}

func (m *stubModel) Type() string { return "Stub" }

func (m *stubModel) Predict([]float64) (int, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return 1, m.predictErr
}

func (m *stubModel) PredictProba([]float64) ([]float64, bool, error) { return m.proba, true, nil }

func (m *stubModel) FeatureImportances() ([]float64, bool) { return nil, false }

func (m *stubModel) Coefficients() ([]float64, bool) { return nil, false }

type recordingHistory struct {
	mu      sync.Mutex
	results []*PredictionResult
	err     error
}

func (h *recordingHistory) SavePrediction(r *PredictionResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return h.err
}

func (h *recordingHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func TestPredictor_ModelNotLoaded(t *testing.T) {
	t.Parallel()

	metrics := &MockMetrics{}
	p := NewPredictor(nil, WithMetrics(metrics))

	_, err := p.Predict(context.Background(), mewtwo)
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = p.FeatureImportance()
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = p.SimilarPokemon(context.Background(), mewtwo)
	assert.ErrorIs(t, err, ErrTrainingDataUnavailable)

	health := p.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.ModelLoaded)
	assert.False(t, health.ShapAvailable)
	assert.False(t, health.FeatureImportanceAvailable)
	assert.Equal(t, "fallback", health.ExplanationMethod)
	assert.Equal(t, "", p.ModelType())
	assert.Equal(t, 0, metrics.Predictions())
}

func TestPredictor_LogisticFallback(t *testing.T) {
	t.Parallel()

	metrics := &MockMetrics{}
	p := NewPredictor(&Artifacts{Model: bstModel()}, WithMetrics(metrics))

	result, err := p.Predict(context.Background(), mewtwo)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Prediction)
	assert.InDelta(t, sigmoid(3.6), result.ProbabilityLegendary, 1e-12)
	assert.InDelta(t, 1.0, result.ProbabilityLegendary+result.ProbabilityNonLegendary, 1e-12)
	assert.Equal(t, "High", result.Confidence)
	assert.Equal(t, MethodFallback, result.ExplanationMethod)
	assert.Equal(t, TypeLogisticRegression, result.ModelType)
	assert.Equal(t, 680, result.BST)
	assert.Equal(t, "Pseudo-Legendary Tier", result.BSTTier)
	assert.Equal(t, mewtwo, result.Stats)
	require.Len(t, result.FeatureContributions, features.NumFeatures)

	importance := ExtractFeatureImportance(bstModel())
	assert.Equal(t, ImportanceFromCoefficients, importance.Kind())
	want := FallbackContributions(mewtwo, 1, result.ProbabilityLegendary, importance)
	assert.Equal(t, want, result.FeatureContributions)

	assert.Equal(t, 1, metrics.Predictions())
	assert.Equal(t, 1, metrics.FallbackUse())
	assert.Equal(t, 1, metrics.MethodCount(MethodFallback))
	assert.Equal(t, []float64{result.ProbabilityLegendary}, metrics.Probabilities())
}

func TestPredictor_LogisticWithKernelExplainer(t *testing.T) {
	t.Parallel()

	model := bstModel()
	explainer, err := NewExplainer(model, DefaultBackground)
	require.NoError(t, err)

	metrics := &MockMetrics{}
	p := NewPredictor(&Artifacts{Model: model, Explainer: explainer}, WithMetrics(metrics), WithShapTimeout(5*time.Second))

	result, err := p.Predict(context.Background(), mewtwo)
	require.NoError(t, err)
	assert.Equal(t, MethodSHAP, result.ExplanationMethod)
	require.Len(t, result.FeatureContributions, features.NumFeatures)

	for i := 1; i < len(result.FeatureContributions); i++ {
		prev := result.FeatureContributions[i-1].Contribution
		cur := result.FeatureContributions[i].Contribution
		assert.GreaterOrEqual(t, abs(prev), abs(cur))
	}
	// sp_attack is furthest above every background row
	assert.Equal(t, "sp_attack", result.FeatureContributions[0].Feature)
	assert.Equal(t, "Positive", result.FeatureContributions[0].Impact)

	assert.Equal(t, 1, metrics.MethodCount(MethodSHAP))
	assert.Equal(t, 0, metrics.FallbackUse())

	health := p.Health()
	assert.True(t, health.ShapAvailable)
	assert.Equal(t, MethodSHAP, health.ExplanationMethod)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestPredictor_HardLabelModel(t *testing.T) {
	t.Parallel()

	p := NewPredictor(&Artifacts{Model: &LinearSVC{Weights: []float64{1, 1, 1, 1, 1, 1}, Intercept: -580}})

	tests := []struct {
		name       string
		stats      features.StatVector
		prediction int
		prob       float64
	}{
		{"above the margin", mewtwo, 1, 1.0},
		{"below the margin", rattata, 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Predict(context.Background(), tt.stats)
			require.NoError(t, err)
			assert.Equal(t, tt.prediction, result.Prediction)
			assert.Equal(t, tt.prob, result.ProbabilityLegendary)
			assert.Equal(t, "High", result.Confidence)
			assert.Equal(t, TypeLinearSVC, result.ModelType)
		})
	}
}

func TestPredictor_Scaler(t *testing.T) {
	t.Parallel()

	scaler := &StandardScaler{
		Mean:  []float64{70, 80, 75, 70, 70, 70},
		Scale: []float64{25, 30, 30, 30, 25, 30},
	}
	model := &LogisticRegression{Weights: []float64{0.8, 0.6, 0.4, 0.9, 0.5, 0.7}, Intercept: -3}
	p := NewPredictor(&Artifacts{Model: model, Scaler: scaler})

	result, err := p.Predict(context.Background(), mewtwo)
	require.NoError(t, err)

	x, err := scaler.Transform(mewtwo.Values())
	require.NoError(t, err)
	proba, _, err := model.PredictProba(x)
	require.NoError(t, err)
	assert.InDelta(t, proba[1], result.ProbabilityLegendary, 1e-12)
	// Contributions report raw stats, never scaled ones
	for _, c := range result.FeatureContributions {
		assert.GreaterOrEqual(t, c.Value, 1.0)
	}
	assert.True(t, p.Health().ScalerLoaded)

	broken := NewPredictor(&Artifacts{Model: model, Scaler: &StandardScaler{Mean: []float64{1}}})
	_, err = broken.Predict(context.Background(), mewtwo)
	assert.ErrorIs(t, err, ErrComputation)
}

func TestPredictor_ComputationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		model Model
	}{
		{"predict error", &stubModel{predictErr: errors.New("bad input"), proba: []float64{0.5, 0.5}}},
		{"short probability vector", &stubModel{proba: []float64{1}}},
		{"panic", &stubModel{panicMsg: "boom"}},
		{"weight mismatch", &LogisticRegression{Weights: []float64{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			history := &recordingHistory{}
			p := NewPredictor(&Artifacts{Model: tt.model}, WithMetrics(metrics), WithHistory(history))

			result, err := p.Predict(context.Background(), mewtwo)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrComputation)
			assert.Equal(t, 1, metrics.Failures())
			assert.Equal(t, 0, metrics.Predictions())
			assert.Equal(t, 0, history.count())
		})
	}
}

func TestPredictor_CacheAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem, err := cache.NewMemory(16, time.Minute)
	require.NoError(t, err)

	metrics := &MockMetrics{}
	history := &recordingHistory{}
	p := NewPredictor(&Artifacts{Model: bstModel()}, WithMetrics(metrics), WithCache(mem), WithHistory(history))

	first, err := p.Predict(ctx, mewtwo)
	require.NoError(t, err)
	second, err := p.Predict(ctx, mewtwo)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, metrics.CacheMisses())
	assert.Equal(t, 1, metrics.CacheHits())
	assert.Equal(t, 2, metrics.Predictions())
	// Only the computed result went through attribution
	assert.Equal(t, 1, metrics.MethodCount(MethodFallback))
	assert.Equal(t, 2, history.count())

	_, err = p.Predict(ctx, rattata)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.CacheMisses())
}

func TestPredictor_CorruptCacheEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem, err := cache.NewMemory(4, 0)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, cacheKey(mewtwo), []byte("not json")))

	metrics := &MockMetrics{}
	p := NewPredictor(&Artifacts{Model: bstModel()}, WithMetrics(metrics), WithCache(mem))

	result, err := p.Predict(ctx, mewtwo)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, 1, metrics.CacheMisses())
	assert.Equal(t, 0, metrics.CacheHits())
}

func TestPredictor_HistoryErrorDoesNotFail(t *testing.T) {
	t.Parallel()

	history := &recordingHistory{err: errors.New("disk full")}
	p := NewPredictor(&Artifacts{Model: bstModel()}, WithHistory(history))

	_, err := p.Predict(context.Background(), rattata)
	require.NoError(t, err)
	assert.Equal(t, 1, history.count())
}

func TestPredictor_FeatureImportance(t *testing.T) {
	t.Parallel()

	model := &LogisticRegression{Weights: []float64{0.5, -2, 1, 3, 0, -1.5}}
	p := NewPredictor(&Artifacts{Model: model})

	report, err := p.FeatureImportance()
	require.NoError(t, err)
	assert.Equal(t, TypeLogisticRegression, report.ModelType)
	assert.Equal(t, ImportanceFromCoefficients, report.ImportanceType)

	order := make([]string, len(report.Features))
	var sum float64
	for i, f := range report.Features {
		order[i] = f.Feature
		sum += f.Importance
	}
	assert.Equal(t, []string{"sp_attack", "attack", "speed", "defense", "hp", "sp_defense"}, order)
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, "Special Attack", report.Features[0].DisplayName)

	preloaded, err := NewImportanceTable([]float64{1, 1, 1, 1, 1, 5}, ImportanceFromModel)
	require.NoError(t, err)
	p = NewPredictor(&Artifacts{Model: model, Importance: preloaded})
	report, err = p.FeatureImportance()
	require.NoError(t, err)
	assert.Equal(t, ImportanceFromModel, report.ImportanceType)
	assert.Equal(t, "speed", report.Features[0].Feature)
	assert.InDelta(t, 0.5, report.Features[0].Importance, 1e-12)
}

func TestPredictor_SimilarPokemon(t *testing.T) {
	t.Parallel()

	records := []SimilarityRecord{
		{Values: []float64{30, 56, 35, 25, 35, 72}, Names: map[string]string{"Name": "Rattata"}},
		{Values: []float64{106, 110, 90, 154, 90, 130}, Names: map[string]string{"Name": "Mewtwo"}, Legendary: 1},
		{Values: []float64{100, 100, 100, 100, 100, 100}, Names: map[string]string{"Name": "Mew"}, Legendary: 1},
	}
	metrics := &MockMetrics{}
	p := NewPredictor(&Artifacts{TrainingData: records}, WithMetrics(metrics))

	// Similarity search works without a model
	report, err := p.SimilarPokemon(context.Background(), mewtwo)
	require.NoError(t, err)
	require.Equal(t, 3, report.Count)
	assert.Equal(t, "Mewtwo", report.SimilarPokemon[0].Name)
	assert.Equal(t, 0.0, report.SimilarPokemon[0].Distance)
	assert.Equal(t, 680, report.SimilarPokemon[0].BST)
	assert.Equal(t, 1, report.SimilarPokemon[0].Legendary)
	assert.Equal(t, "Mew", report.SimilarPokemon[1].Name)
	assert.Equal(t, "Rattata", report.SimilarPokemon[2].Name)
	assert.Equal(t, 1, metrics.SimilarityRequests())

	bad := NewPredictor(&Artifacts{TrainingData: []SimilarityRecord{{Values: []float64{1, 2}}}})
	_, err = bad.SimilarPokemon(context.Background(), mewtwo)
	assert.ErrorIs(t, err, ErrComputation)
}

func TestPredictor_ConcurrentPredictions(t *testing.T) {
	t.Parallel()

	model := bstModel()
	explainer, err := NewExplainer(model, DefaultBackground)
	require.NoError(t, err)
	mem, err := cache.NewMemory(8, time.Minute)
	require.NoError(t, err)

	metrics := &MockMetrics{}
	p := NewPredictor(&Artifacts{Model: model, Explainer: explainer}, WithMetrics(metrics), WithCache(mem))

	inputs := []features.StatVector{mewtwo, rattata}
	want := make([]*PredictionResult, len(inputs))
	for i, s := range inputs {
		uncached := NewPredictor(&Artifacts{Model: model, Explainer: explainer})
		want[i], err = uncached.Predict(context.Background(), s)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.Predict(context.Background(), inputs[i%2])
			if err != nil {
				errs <- err
				return
			}
			if got.Prediction != want[i%2].Prediction || got.ExplanationMethod != want[i%2].ExplanationMethod {
				errs <- errors.New("concurrent prediction diverged")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 40, metrics.Predictions())
	assert.Equal(t, 40, metrics.CacheHits()+metrics.CacheMisses())
}
