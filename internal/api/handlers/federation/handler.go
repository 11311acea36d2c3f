// Package federation exposes the two HTTP legs of the OpenID Connect
// relying-party flow: GET /federate and GET /callback.
package federation

import (
	"errors"
	"log"
	"net/http"

	"Harbor/internal/api/middleware"
	"Harbor/internal/core/federation"
	"Harbor/internal/metrics"
	"Harbor/internal/oidc"
)

// Handler wires the federation controller to HTTP.
type Handler struct {
	controller *federation.Controller
	collector  *metrics.Collector
}

// NewHandler creates a federation handler.
func NewHandler(controller *federation.Controller, collector *metrics.Collector) *Handler {
	return &Handler{controller: controller, collector: collector}
}

// HandleFederate starts a flow and redirects to the provider's
// authorization endpoint.
// GET /federate
func (h *Handler) HandleFederate(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	redirectURL, err := h.controller.Begin(r.Context(), session)
	if err != nil {
		if errors.Is(err, federation.ErrFederationInProgress) {
			// A begin while another flow is pending: send the user back
			// to start over rather than clobbering the pending state.
			http.Redirect(w, r, "/federation-error", http.StatusTemporaryRedirect)
			return
		}
		log.Printf("failed to begin federation: %v", err)
		http.Error(w, "Failed to start federated sign-in", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleCallback completes a flow. Success redirects to /home; every
// failure lands on the generic federation-error page. Internal error
// distinctions are for logs and metrics, not for end users, and token
// contents never appear in either.
// GET /callback?code=...&state=... or GET /callback?error=...
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")
	errorParam := query.Get("error")

	outcome, err := h.controller.Callback(r.Context(), session, state, code, errorParam)
	if err != nil {
		kind := errorKind(err)
		log.Printf("federation callback failed: kind=%s state=%s err=%v",
			kind, federation.StatePrefix(state), err)
		h.collector.RecordFederationOutcome(kind)

		target := "/federation-error"
		if errors.Is(err, federation.ErrIdentityConflict) {
			// User-correctable, but the page must not confirm which
			// account owns the identity.
			target = "/federation-error?conflict=1"
		}
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}

	h.collector.RecordFederationOutcome(string(outcome.Status))
	if outcome.Status == federation.StatusLoggedIn {
		h.collector.RecordSignin("federation")
	}

	http.Redirect(w, r, "/home", http.StatusTemporaryRedirect)
}

// errorKind maps a callback failure to a stable label for logs and
// metrics.
func errorKind(err error) string {
	var validationErr *oidc.TokenValidationError
	var exchangeErr *oidc.TokenExchangeError
	var discoveryErr *oidc.DiscoveryError

	switch {
	case errors.Is(err, federation.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, federation.ErrProviderDenied):
		return "provider_denied"
	case errors.Is(err, federation.ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, federation.ErrIdentityConflict):
		return "identity_conflict"
	case errors.As(err, &validationErr):
		return "token_validation_" + string(validationErr.Kind)
	case errors.As(err, &exchangeErr):
		return "token_exchange"
	case errors.As(err, &discoveryErr):
		return "discovery"
	default:
		return "internal"
	}
}
