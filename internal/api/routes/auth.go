package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"Harbor/internal/api/handlers/passkey"
	"Harbor/internal/api/handlers/password"
	"Harbor/internal/api/middleware"
)

// RegisterAuthRoutes registers the username/password and passkey
// endpoints under /auth. Sign-in attempts get a strict per-IP limit
// (credential stuffing protection); sign-out shares it since it is
// cheap to abuse.
func RegisterAuthRoutes(r chi.Router, pw *password.Handler, pk *passkey.Handler) {
	limiter := middleware.NewRateLimiter(10, 1*time.Minute)

	r.Route("/auth", func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Post("/username", pw.HandleUsername)
		r.Post("/password", pw.HandlePassword)
		r.Post("/register", pw.HandleRegister)
		r.Get("/signout", pw.HandleSignout)

		r.Post("/passkey/register/begin", pk.HandleRegisterBegin)
		r.Post("/passkey/register/finish", pk.HandleRegisterFinish)
		r.Post("/passkey/login/begin", pk.HandleLoginBegin)
		r.Post("/passkey/login/finish", pk.HandleLoginFinish)
	})
}
