package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legendary-classifier/internal/features"
	"legendary-classifier/internal/metrics"
	"legendary-classifier/internal/ml"
	"legendary-classifier/internal/storage"
)

func TestIntegration_PredictorBehindRouter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	wrapper := metrics.NewWrapper(m)

	predictor := ml.NewPredictor(&ml.Artifacts{
		Model: &ml.LogisticRegression{Weights: []float64{0.02, 0.02, 0.02, 0.02, 0.02, 0.02}, Intercept: -10},
		TrainingData: []ml.SimilarityRecord{
			{Values: []float64{45, 49, 49, 65, 65, 45}, Names: map[string]string{"Name": "Bulbasaur"}},
			{Values: []float64{106, 110, 90, 154, 90, 130}, Names: map[string]string{"Name": "Mewtwo"}, Legendary: 1},
		},
	}, ml.WithMetrics(wrapper), ml.WithHistory(store))

	h := NewHandler(predictor, WithHistory(store), WithMetrics(wrapper))
	srv := newTestServer(t, h, RouterOptions{Gatherer: reg})

	resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader(mewtwoJSON))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ml.PredictionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, ml.MethodFallback, result.ExplanationMethod)
	assert.Equal(t, "High", result.Confidence)
	assert.Len(t, result.FeatureContributions, features.NumFeatures)

	resp, err = http.Post(srv.URL+"/similar-pokemon", "application/json", strings.NewReader(mewtwoJSON))
	require.NoError(t, err)
	defer resp.Body.Close()
	var similar ml.SimilarReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&similar))
	require.Equal(t, 2, similar.Count)
	assert.Equal(t, "Mewtwo", similar.SimilarPokemon[0].Name)
	assert.Equal(t, 0.0, similar.SimilarPokemon[0].Distance)

	resp, err = http.Get(srv.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	var history HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Equal(t, 1, history.Count)
	assert.Equal(t, 680, history.Predictions[0].BST)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimilarityRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExplanationMethods.WithLabelValues(ml.MethodFallback)))
}

func TestIntegration_DegradedPredictor(t *testing.T) {
	h := NewHandler(ml.NewPredictor(nil))
	srv := newTestServer(t, h, RouterOptions{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health ml.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.ModelLoaded)
	assert.Equal(t, "fallback", health.ExplanationMethod)

	tests := []struct {
		method, path string
		wantStatus   int
		wantDetail   string
	}{
		{http.MethodPost, "/predict", http.StatusInternalServerError, "Model not loaded"},
		{http.MethodGet, "/feature-importance", http.StatusInternalServerError, "Model not loaded"},
		{http.MethodPost, "/similar-pokemon", http.StatusServiceUnavailable, "Training data not available"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(mewtwoJSON))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, tt.wantStatus, resp.StatusCode, tt.path)
		assert.Equal(t, tt.wantDetail, decodeDetail(t, resp), tt.path)
		resp.Body.Close()
	}
}
