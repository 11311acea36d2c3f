package routes

import (
	"github.com/go-chi/chi/v5"

	"Harbor/internal/api/handlers/wellknown"
)

// RegisterWellKnownRoutes registers the RFC 8615 well-known URIs used
// for Android app association and passkey endpoint discovery. Both must
// be served at their exact paths with application/json and no redirects.
func RegisterWellKnownRoutes(r chi.Router, handler *wellknown.Handler) {
	r.Get("/.well-known/assetlinks.json", handler.HandleAssetLinks)
	r.Get("/.well-known/passkey-endpoints", handler.HandlePasskeyEndpoints)
}
