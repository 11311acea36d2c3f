package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"Harbor/internal/api/handlers/federation"
	"Harbor/internal/api/middleware"
)

// RegisterFederationRoutes registers the two legs of the OpenID Connect
// relying-party flow. Both share a strict rate limit: /federate mints
// single-use state, so letting it be hammered would just fill the store
// with abandoned flows.
func RegisterFederationRoutes(r chi.Router, handler *federation.Handler) {
	limiter := middleware.NewRateLimiter(10, 1*time.Minute)

	r.With(limiter.Middleware).Get("/federate", handler.HandleFederate)
	r.With(limiter.Middleware).Get("/callback", handler.HandleCallback)
}
