package websocket

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"retrochat-backend/internal/metrics"
	"retrochat-backend/internal/middleware"
	"retrochat-backend/internal/models"
	"retrochat-backend/internal/services"
)

// ChatSocket serves the relay over a WebSocket. Each inbound text frame is a
// ChatRequest; the reply is one text frame per fragment followed by a
// {"type":"done"} frame. Exchanges on one connection run one at a time; frames
// sent while one is running wait in a short queue.
type ChatSocket struct {
	relay    *services.Relay
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewChatSocket(relay *services.Relay, m *metrics.Metrics, frontendURL string) *ChatSocket {
	return &ChatSocket{
		relay:   relay,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == frontendURL
			},
		},
	}
}

// maxQueuedFrames bounds the requests a client may send ahead of the exchange
// in progress. Exceeding it closes the connection.
const maxQueuedFrames = 8

type inbound struct {
	req models.ChatRequest
	err error
}

func (s *ChatSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	requestID := middleware.GetRequestID(r.Context())
	log.Printf("WebSocket connected: chat[%s] %s", s.relay.PersonaName(), requestID)

	// Losing the reader means the client is gone, which cancels any
	// in-flight upstream call.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan inbound, maxQueuedFrames)
	go s.readLoop(cancel, conn, requestID, frames)

	for frame := range frames {
		if ctx.Err() != nil {
			break
		}
		s.exchange(ctx, conn, requestID, frame)
	}

	log.Printf("WebSocket disconnected: chat[%s] %s", s.relay.PersonaName(), requestID)
}

// readLoop never blocks on the exchange loop, so a client that goes away
// mid-exchange is always seen and cancels the upstream call.
func (s *ChatSocket) readLoop(cancel context.CancelFunc, conn *websocket.Conn, requestID string, frames chan<- inbound) {
	defer close(frames)
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inbound
		frame.req, frame.err = services.DecodeChatRequest(bytes.NewReader(data))

		select {
		case frames <- frame:
		default:
			log.Printf("✗ chat[%s] %s: more than %d queued frames, closing", s.relay.PersonaName(), requestID, maxQueuedFrames)
			return
		}
	}
}

func (s *ChatSocket) exchange(ctx context.Context, conn *websocket.Conn, requestID string, frame inbound) {
	start := time.Now()

	if frame.err != nil {
		log.Printf("✗ chat[%s] %s: invalid frame: %v", s.relay.PersonaName(), requestID, frame.err)
		s.metrics.Record(metrics.ResultPreStreamFailure, time.Since(start))
		s.fail(conn, services.CriticalFailureText)
		return
	}

	stream, err := s.relay.OpenRequest(ctx, frame.req)
	if err != nil {
		result := metrics.ResultPreStreamFailure
		if errors.Is(err, services.ErrConfigurationMissing) {
			result = metrics.ResultConfigurationFailure
		}
		log.Printf("✗ chat[%s] %s: %v", s.relay.PersonaName(), requestID, err)
		s.metrics.Record(result, time.Since(start))
		s.fail(conn, services.FailureText(err))
		return
	}

	outcome, err := stream.Forward(frameWriter{conn: conn})
	if err != nil {
		log.Printf("chat[%s] %s: stream %s after %s: %v", s.relay.PersonaName(), requestID, outcome, time.Since(start), err)
	}
	s.metrics.Record(metrics.Result(outcome.String()), time.Since(start))

	if outcome != services.OutcomeCancelled {
		s.done(conn)
	}
}

func (s *ChatSocket) fail(conn *websocket.Conn, text string) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return
	}
	s.done(conn)
}

func (s *ChatSocket) done(conn *websocket.Conn) {
	conn.WriteJSON(models.SocketEvent{Type: "done"})
}

// frameWriter sends every Write as its own text frame.
type frameWriter struct {
	conn *websocket.Conn
}

func (f frameWriter) Write(p []byte) (int, error) {
	if err := f.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
