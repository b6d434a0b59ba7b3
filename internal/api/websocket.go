package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamWriteWait    = 10 * time.Second
	streamIdleTimeout  = 60 * time.Second
	streamMaxFrameSize = 4096
)

// PredictStream upgrades to a websocket. Every text frame is a StatVector
// and is answered with a PredictionResult or an ErrorResponse.
func (h *Handler) PredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.addStream(conn)
	defer h.removeStream(conn)

	conn.SetReadLimit(streamMaxFrameSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Prediction stream closed")
			}
			return
		}

		reply := h.streamReply(r.Context(), data)
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug().Err(err).Msg("Failed to write prediction to stream")
			return
		}
	}
}

func (h *Handler) streamReply(ctx context.Context, data []byte) interface{} {
	stats, err := h.decodeStats(bytes.NewReader(data))
	if err != nil {
		return ErrorResponse{Detail: err.Error()}
	}

	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}
	result, err := h.predictor.Predict(ctx, stats)
	if err != nil {
		_, detail := errorStatus(err, "Prediction error")
		return ErrorResponse{Detail: detail}
	}
	return result
}

func (h *Handler) addStream(conn *websocket.Conn) {
	h.streamsMu.Lock()
	h.streams[conn] = true
	h.streamsMu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections().Add(1)
	}
}

func (h *Handler) removeStream(conn *websocket.Conn) {
	h.streamsMu.Lock()
	_, ok := h.streams[conn]
	delete(h.streams, conn)
	h.streamsMu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.WSConnections().Add(-1)
	}
}

// CloseStreams closes every open prediction stream. http.Server.Shutdown
// does not track hijacked connections.
func (h *Handler) CloseStreams() {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	for conn := range h.streams {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
