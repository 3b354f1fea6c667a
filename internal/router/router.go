package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gemchat-backend/internal/handlers"
	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	chatHandler *handlers.ChatHandler,
	speechHandler *handlers.SpeechHandler,
	relayHandler http.Handler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Relay Function (public, allow-all CORS of its own) ────
	r.Handle("/functions/v1/gemini-chat", relayHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(frontendURL))

		r.Route("/api/v1", func(r chi.Router) {

			// ──── Messages ────
			r.Route("/messages", func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/", chatHandler.ListMessages)
				r.Post("/", chatHandler.SendMessage)
				r.Delete("/", chatHandler.ClearMessages)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/status", chatHandler.Status)
			})

			// ──── Draft ────
			r.Route("/draft", func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/", chatHandler.GetDraft)
				r.Put("/", chatHandler.SetDraftText)
				r.Post("/image", chatHandler.StageImage)
				r.Delete("/image", chatHandler.RemoveImage)
			})

			// ──── WebSockets (token query param) ────
			r.Get("/ws", wsHub.HandleWebSocket)
			r.Get("/speech", speechHandler.HandleSpeech)
		})
	})

	return r
}
