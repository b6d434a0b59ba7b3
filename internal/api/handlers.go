// Package api exposes the legendary classifier over HTTP: prediction with
// explanation, global feature importance, nearest neighbours, prediction
// history and a websocket stream of predictions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/common"
	"legendary-classifier/internal/features"
	"legendary-classifier/internal/metrics"
	"legendary-classifier/internal/ml"
	"legendary-classifier/internal/storage"
)

const maxBodyBytes = 1 << 20

// HistoryReader is the read side of the prediction history store.
type HistoryReader interface {
	RecentPredictions(limit int) ([]storage.PredictionRecord, error)
	Count() (int, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HistoryResponse struct {
	Predictions []storage.PredictionRecord `json:"predictions"`
	Count       int                        `json:"count"`
	Total       int                        `json:"total"`
}

type Handler struct {
	predictor      ml.PredictorInterface
	history        HistoryReader
	metrics        *metrics.MetricsWrapper
	validator      *validator.Validate
	upgrader       websocket.Upgrader
	requestTimeout time.Duration

	streams   map[*websocket.Conn]bool
	streamsMu sync.Mutex
}

// HandlerOption configures optional collaborators of a Handler.
type HandlerOption func(*Handler)

// WithHistory enables GET /history. Without it the endpoint answers 503.
func WithHistory(h HistoryReader) HandlerOption {
	return func(handler *Handler) { handler.history = h }
}

func WithMetrics(m *metrics.MetricsWrapper) HandlerOption {
	return func(handler *Handler) { handler.metrics = m }
}

// WithRequestTimeout bounds each prediction. Zero disables the bound.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(handler *Handler) { handler.requestTimeout = d }
}

func NewHandler(predictor ml.PredictorInterface, opts ...HandlerOption) *Handler {
	v := validator.New()
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	h := &Handler{
		predictor: predictor,
		validator: v,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		streams:   make(map[*websocket.Conn]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/predict", h.Predict)
	r.Get("/feature-importance", h.FeatureImportance)
	r.Post("/similar-pokemon", h.SimilarPokemon)
	r.Get("/history", h.History)
	r.Get("/ws/predict", h.PredictStream)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    common.ServiceName,
		"version": common.ServiceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"predict":            "/predict (POST)",
			"feature-importance": "/feature-importance (GET)",
			"similar-pokemon":    "/similar-pokemon (POST)",
			"history":            "/history (GET)",
			"stream":             "/ws/predict (WebSocket)",
			"health":             "/health (GET)",
			"metrics":            "/metrics (GET)",
		},
	}
	if h.metrics != nil {
		info["error_rate"] = h.metrics.ErrorRate()
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.predictor.Health())
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	stats, err := h.decodeStats(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	result, err := h.predictor.Predict(ctx, stats)
	if err != nil {
		status, detail := errorStatus(err, "Prediction error")
		log.Error().Err(err).Str("stats", stats.Key()).Msg("Prediction failed")
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	report, err := h.predictor.FeatureImportance()
	if err != nil {
		status, detail := errorStatus(err, "Error retrieving feature importance")
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) SimilarPokemon(w http.ResponseWriter, r *http.Request) {
	stats, err := h.decodeStats(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	report, err := h.predictor.SimilarPokemon(r.Context(), stats)
	if err != nil {
		status, detail := errorStatus(err, "Error finding similar Pokemon")
		log.Error().Err(err).Str("stats", stats.Key()).Msg("Similarity search failed")
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// History lists the most recent predictions, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, common.ErrMsgHistoryUnavailable)
		return
	}

	limit := common.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = min(n, common.MaxHistoryLimit)
	}

	records, err := h.history.RecentPredictions(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prediction history")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading prediction history: %v", err))
		return
	}
	total, err := h.history.Count()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count prediction history")
		total = len(records)
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Predictions: records,
		Count:       len(records),
		Total:       total,
	})
}

// decodeStats reads and validates one StatVector. The returned error
// message is suitable as a 422 detail.
func (h *Handler) decodeStats(body io.Reader) (features.StatVector, error) {
	var stats features.StatVector
	if err := json.NewDecoder(body).Decode(&stats); err != nil {
		if errors.Is(err, io.EOF) {
			return stats, errors.New("Request body is required")
		}
		return stats, fmt.Errorf("Invalid request body: %v", err)
	}
	if err := h.validator.Struct(&stats); err != nil {
		return stats, errors.New(validationDetail(err))
	}
	return stats, nil
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be between %d and %d", fe.Field(), features.MinStat, features.MaxStat))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// errorStatus maps predictor errors to a status code and detail. prefix
// labels computation failures.
func errorStatus(err error, prefix string) (int, string) {
	switch {
	case errors.Is(err, ml.ErrModelNotLoaded):
		return http.StatusInternalServerError, common.ErrMsgModelNotLoaded
	case errors.Is(err, ml.ErrImportanceUnavailable):
		return http.StatusInternalServerError, common.ErrMsgImportanceUnavailable
	case errors.Is(err, ml.ErrTrainingDataUnavailable):
		return http.StatusServiceUnavailable, common.ErrMsgTrainingDataUnavailable
	default:
		return http.StatusInternalServerError, fmt.Sprintf("%s: %v", prefix, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
