package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"flashdeck-backend/internal/handlers"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/websocket"
)

type healthChecker interface {
	Check(ctx context.Context) error
}

func New(
	health healthChecker,
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	deckHandler *handlers.DeckHandler,
	flashcardHandler *handlers.FlashcardHandler,
	sourceHandler *handlers.SourceHandler,
	studyHandler *handlers.StudyHandler,
	chatHandler *handlers.ChatHandler,
	userHandler *handlers.UserHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	log *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Generation calls Gemini; 20 req/min per IP
	generateLimiter := middleware.NewRateLimiter(20, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := health.Check(r.Context()); err != nil {
			middleware.LoggerFrom(r.Context()).Warn("health check failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Deck Routes ────
		r.Route("/decks", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", deckHandler.List)
			r.Post("/", deckHandler.Create)
			r.Get("/{id}", deckHandler.Get)
			r.Put("/{id}", deckHandler.Update)
			r.Delete("/{id}", deckHandler.Delete)
		})

		// ──── Flashcard Routes ────
		r.Route("/flashcards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(generateLimiter.Middleware)
				r.Post("/generate", flashcardHandler.Generate)
				r.Post("/generate/async", flashcardHandler.GenerateAsync)
			})

			r.Post("/save", flashcardHandler.Save)
			r.Get("/", flashcardHandler.List)
			r.Get("/{id}", flashcardHandler.Get)
			r.Put("/{id}", flashcardHandler.Update)
			r.Delete("/{id}", flashcardHandler.Delete)
		})

		// ──── Source Routes ────
		r.Route("/sources", func(r chi.Router) {
			r.Get("/supported-formats", sourceHandler.SupportedFormats) // Public

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/upload", sourceHandler.Upload)
				r.Post("/image", sourceHandler.UploadImage)
				r.Post("/youtube", sourceHandler.YouTube)
				r.Post("/website", sourceHandler.Website)
				r.Get("/{id}", sourceHandler.Get)
			})
		})

		// ──── Study Routes ────
		r.Route("/study", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/sessions", studyHandler.StartSession)
			r.Get("/sessions/{id}", studyHandler.GetSession)
			r.Get("/sessions/{id}/cards", studyHandler.SessionCards)
			r.Post("/sessions/{id}/complete", studyHandler.CompleteSession)
			r.Get("/sessions/{id}/result", studyHandler.Result)
			r.Post("/answers", studyHandler.SubmitAnswer)
			r.Get("/cards/due", studyHandler.DueCards)
			r.Post("/cards/multiple-choice", studyHandler.MultipleChoice)
			r.Post("/cards/true-false", studyHandler.TrueFalse)
		})

		// ──── Chat ────
		r.With(jwtAuth.Middleware).Post("/chat", chatHandler.Chat)

		// ──── User Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", userHandler.GetMe)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
