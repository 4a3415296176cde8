package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nexauth/server/internal/auth"
	"github.com/nexauth/server/internal/http/handlers"
	"github.com/nexauth/server/internal/middleware"
	"github.com/nexauth/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, jwtService *auth.JWTService, accounts repo.AccountRepo) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login/username", authHandler.HandleLoginUsername)
		r.Post("/register/username", authHandler.HandleRegisterUsername)
		r.Post("/login/phone", authHandler.HandleLoginPhone)
		r.Post("/register/phone", authHandler.HandleRegisterPhone)
		r.Post("/login/email", authHandler.HandleLoginEmail)
		r.Post("/register/email", authHandler.HandleRegisterEmail)
		r.Post("/login", authHandler.HandleLoginCombine)
		r.Post("/register", authHandler.HandleRegisterCombine)
		r.Post("/verify", authHandler.HandleVerify)
	})

	// Protected routes (require a valid access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, accounts))
		r.Get("/me", authHandler.HandleMe)
		r.Put("/me/password", authHandler.HandleChangePassword)
	})

	return r
}
