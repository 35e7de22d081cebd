package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/aliaff/internal/api/handler"
	mw "github.com/iconidentify/aliaff/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
// savedPostHandler may be nil when the saved posts store is unavailable.
func NewRouter(
	healthHandler *handler.HealthHandler,
	affiliateHandler *handler.AffiliateHandler,
	publishHandler *handler.PublishHandler,
	scheduleHandler *handler.ScheduleHandler,
	assistantHandler *handler.AssistantHandler,
	savedPostHandler *handler.SavedPostHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(2 * time.Minute))

	// CORS for the dashboard
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/ping", healthHandler.Ping)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)

		r.Post("/affiliate", affiliateHandler.Generate)

		r.Post("/publish", publishHandler.Publish)
		r.Post("/publish-collection", publishHandler.PublishCollection)

		r.Post("/scheduled-posts", scheduleHandler.Submit)
		r.Get("/scheduled-posts", scheduleHandler.List)
		r.Post("/scheduled-posts/check", scheduleHandler.Check)
		r.Delete("/scheduled-posts/{id}", scheduleHandler.Delete)

		r.Post("/assistant/refine-title", assistantHandler.RefineTitle)
		r.Post("/assistant/hook", assistantHandler.Hook)
		r.Get("/assistant/status", assistantHandler.Status)
		r.Put("/assistant/keys", assistantHandler.SetKeys)

		if savedPostHandler != nil {
			r.Get("/saved-posts", savedPostHandler.List)
			r.Post("/saved-posts", savedPostHandler.Add)
			r.Delete("/saved-posts", savedPostHandler.Clear)
			r.Delete("/saved-posts/{id}", savedPostHandler.Delete)
		}
	})

	return r
}
