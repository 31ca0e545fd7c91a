package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/aetherflow/engine/internal/api/handlers"
	mw "github.com/aetherflow/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret      []byte
	AuthHandler     *handlers.AuthHandler
	APIKeysHandler  *handlers.APIKeysHandler
	OptimizeHandler *handlers.OptimizeHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		// Auth routes (public)
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
		})

		// Protected routes
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			// Provider credentials
			protected.Route("/api-keys", func(kr chi.Router) {
				kr.Get("/", dep.APIKeysHandler.List)
				kr.Post("/", dep.APIKeysHandler.Create)
				kr.Post("/{id}/verify", dep.APIKeysHandler.Verify)
				kr.Patch("/{id}", dep.APIKeysHandler.Update)
				kr.Delete("/{id}", dep.APIKeysHandler.Delete)
			})

			// Prompt optimization
			protected.Route("/prompts/optimize", func(or chi.Router) {
				or.Post("/", dep.OptimizeHandler.Optimize)
				or.Get("/history", dep.OptimizeHandler.History)
				or.Get("/history/{id}", dep.OptimizeHandler.HistoryByID)
				or.Post("/history/{id}/rate", dep.OptimizeHandler.Rate)
			})
		})
	})

	return r
}
