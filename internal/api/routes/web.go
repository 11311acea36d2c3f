package routes

import (
	"github.com/go-chi/chi/v5"

	"Harbor/internal/web"
)

// RegisterWebRoutes registers the HTML page routes: the sign-in
// variants, the re-auth prompt, the signed-in home page, and the
// federation error page.
func RegisterWebRoutes(r chi.Router, handlers *web.Handlers) {
	r.Get("/", handlers.HandleIndex)
	r.Get("/one-button", handlers.HandleOneButton)
	r.Get("/social-login", handlers.HandleSocialLogin)
	r.Get("/reauth", handlers.HandleReauth)
	r.Get("/home", handlers.HandleHome)
	r.Get("/federation-error", handlers.HandleFederationError)
}
