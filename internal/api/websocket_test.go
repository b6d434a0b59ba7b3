package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legendary-classifier/internal/metrics"
	"legendary-classifier/internal/ml"
)

func dialStream(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

func TestPredictStream(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	pred := &stubPredictor{}
	srv := newTestServer(t, NewHandler(pred, WithMetrics(metrics.NewWrapper(m))), RouterOptions{})

	conn := dialStream(t, srv.URL)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(mewtwoJSON)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var result ml.PredictionResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, 680, result.BST)

	// Invalid frames get a detail and keep the stream open
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"hp":999}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var detail ErrorResponse
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Contains(t, detail.Detail, "hp must be between 1 and 255")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(mewtwoJSON)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	assert.Equal(t, 2, pred.callCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
}

func TestPredictStream_PredictorError(t *testing.T) {
	srv := newTestServer(t, NewHandler(&stubPredictor{err: ml.ErrModelNotLoaded}), RouterOptions{})

	conn := dialStream(t, srv.URL)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(mewtwoJSON)))
	var detail ErrorResponse
	require.NoError(t, conn.ReadJSON(&detail))
	assert.Equal(t, "Model not loaded", detail.Detail)
}

func TestCloseStreams(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	h := NewHandler(&stubPredictor{}, WithMetrics(metrics.NewWrapper(m)))
	srv := newTestServer(t, h, RouterOptions{})

	conn := dialStream(t, srv.URL)
	defer conn.Close()

	// Round trip so the server has registered the stream
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(mewtwoJSON)))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	h.CloseStreams()

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.WSConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
