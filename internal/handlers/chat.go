package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"retrochat-backend/internal/metrics"
	"retrochat-backend/internal/middleware"
	"retrochat-backend/internal/services"
)

type ChatHandler struct {
	relay        *services.Relay
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

func NewChatHandler(relay *services.Relay, m *metrics.Metrics, maxBodyBytes int64) *ChatHandler {
	return &ChatHandler{
		relay:        relay,
		metrics:      m,
		maxBodyBytes: maxBodyBytes,
	}
}

// Chat streams the completion for the posted history as raw text.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	req, err := services.DecodeChatRequest(r.Body)
	if err != nil {
		log.Printf("✗ chat[%s] %s: invalid request body: %v", h.relay.PersonaName(), requestID, err)
		h.metrics.Record(metrics.ResultPreStreamFailure, time.Since(start))
		writeText(w, http.StatusInternalServerError, services.CriticalFailureText)
		return
	}

	stream, err := h.relay.OpenRequest(r.Context(), req)
	if err != nil {
		result := metrics.ResultPreStreamFailure
		if errors.Is(err, services.ErrConfigurationMissing) {
			result = metrics.ResultConfigurationFailure
		}
		log.Printf("✗ chat[%s] %s: %v", h.relay.PersonaName(), requestID, err)
		h.metrics.Record(result, time.Since(start))
		writeText(w, http.StatusInternalServerError, services.FailureText(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	outcome, err := stream.Forward(w)
	if err != nil {
		log.Printf("chat[%s] %s: stream %s after %s: %v", h.relay.PersonaName(), requestID, outcome, time.Since(start), err)
	}
	h.metrics.Record(metrics.Result(outcome.String()), time.Since(start))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
