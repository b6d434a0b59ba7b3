package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
)

var mewtwo = features.StatVector{HP: 106, Attack: 110, Defense: 90, SpAttack: 154, SpDefense: 90, Speed: 130}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var stats features.StatVector
		if err := json.NewDecoder(r.Body).Decode(&stats); err != nil || stats.HP > 255 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "hp must be between 1 and 255"})
			return
		}
		writeJSON(w, http.StatusOK, ml.PredictionResult{
			Prediction:           1,
			ProbabilityLegendary: 0.97,
			Stats:                stats,
			BST:                  stats.Total(),
			ExplanationMethod:    ml.MethodSHAP,
		})
	})
	mux.HandleFunc("/feature-importance", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Model not loaded"})
	})
	mux.HandleFunc("/similar-pokemon", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ml.SimilarReport{
			SimilarPokemon: []ml.SimilarPokemon{{Name: "Mewtwo", BST: 680, Legendary: 1}},
			Count:          1,
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ml.HealthStatus{Status: "healthy", ModelLoaded: true, ExplanationMethod: "SHAP"})
	})
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		limit := r.URL.Query().Get("limit")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"predictions": []map[string]interface{}{{"id": "a", "bst": 680}},
			"count":       1,
			"total":       len(limit),
		})
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Predict(t *testing.T) {
	c := New(newServer(t).URL, time.Second)

	result, err := c.Predict(context.Background(), mewtwo)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, 680, result.BST)
	assert.Equal(t, mewtwo, result.Stats)

	bad := mewtwo
	bad.HP = 300
	_, err = c.Predict(context.Background(), bad)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "hp must be between 1 and 255", apiErr.Detail)
	assert.Equal(t, "legendary api: 422 hp must be between 1 and 255", err.Error())
}

func TestClient_FeatureImportanceError(t *testing.T) {
	c := New(newServer(t).URL, time.Second)

	_, err := c.FeatureImportance(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Model not loaded", apiErr.Detail)
}

func TestClient_SimilarHealthHistory(t *testing.T) {
	c := New(newServer(t).URL, 0)
	ctx := context.Background()

	similar, err := c.Similar(ctx, mewtwo)
	require.NoError(t, err)
	assert.Equal(t, "Mewtwo", similar.SimilarPokemon[0].Name)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.ModelLoaded)
	assert.Equal(t, "SHAP", health.ExplanationMethod)

	history, err := c.History(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Count)
	assert.Equal(t, 2, history.Total)
	assert.Equal(t, 680, history.Predictions[0].BST)

	history, err = c.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, history.Total)
}

func TestClient_NonJSONError(t *testing.T) {
	c := New(newServer(t).URL, time.Second)

	err := c.do(context.Background(), http.MethodGet, "/plain", nil, nil, &ml.HealthStatus{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "upstream broke")
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
