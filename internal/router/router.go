package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"retrochat-backend/internal/handlers"
	"retrochat-backend/internal/metrics"
	"retrochat-backend/internal/middleware"
	"retrochat-backend/internal/websocket"
)

func New(
	chatHandler *handlers.ChatHandler,
	xpChatHandler *handlers.ChatHandler,
	chatSocket *websocket.ChatSocket,
	xpChatSocket *websocket.ChatSocket,
	m *metrics.Metrics,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {

		// ──── Classic theme ────
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chatHandler.Chat)
			r.Get("/ws", chatSocket.HandleWebSocket)
		})

		// ──── XP theme ────
		r.Route("/xp/chat", func(r chi.Router) {
			r.Post("/", xpChatHandler.Chat)
			r.Get("/ws", xpChatSocket.HandleWebSocket)
		})
	})

	return r
}
