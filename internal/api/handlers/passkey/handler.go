// Package passkey exposes the WebAuthn registration and login
// ceremonies over HTTP.
package passkey

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"Harbor/internal/api/middleware"
	"Harbor/internal/core/accounts"
	"Harbor/internal/core/sessions"
	"Harbor/internal/metrics"
	"Harbor/internal/passkeys"
)

// Handler serves the passkey ceremony endpoints.
type Handler struct {
	service   *passkeys.Service
	sessions  sessions.Store
	collector *metrics.Collector
}

// NewHandler creates a passkey handler.
func NewHandler(service *passkeys.Service, store sessions.Store, collector *metrics.Collector) *Handler {
	return &Handler{service: service, sessions: store, collector: collector}
}

// HandleRegisterBegin starts a credential creation ceremony for the
// signed-in user.
// POST /auth/passkey/register/begin
func (h *Handler) HandleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !session.SignedIn {
		http.Error(w, "Sign in first", http.StatusUnauthorized)
		return
	}

	creation, err := h.service.BeginRegistration(r.Context(), session.ID, session.Username)
	if err != nil {
		log.Printf("failed to begin passkey registration: %v", err)
		http.Error(w, "Failed to start registration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, creation)
}

// HandleRegisterFinish validates the attestation response and stores the
// credential.
// POST /auth/passkey/register/finish
func (h *Handler) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !session.SignedIn {
		http.Error(w, "Sign in first", http.StatusUnauthorized)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		http.Error(w, "Invalid attestation response", http.StatusBadRequest)
		return
	}

	if _, err := h.service.FinishRegistration(r.Context(), session.ID, session.Username, response); err != nil {
		if errors.Is(err, passkeys.ErrNoCeremony) {
			http.Error(w, "No registration in progress", http.StatusBadRequest)
			return
		}
		log.Printf("failed to finish passkey registration: %v", err)
		http.Error(w, "Failed to register passkey", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

// HandleLoginBegin starts an assertion ceremony for the session's
// claimed username.
// POST /auth/passkey/login/begin
func (h *Handler) HandleLoginBegin(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if session.Username == "" {
		http.Error(w, "Enter username first", http.StatusBadRequest)
		return
	}

	assertion, err := h.service.BeginLogin(r.Context(), session.ID, session.Username)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			// Same answer for unknown users and users without passkeys.
			http.Error(w, "No passkey available", http.StatusBadRequest)
			return
		}
		log.Printf("failed to begin passkey login: %v", err)
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	writeJSON(w, assertion)
}

// HandleLoginFinish validates the assertion and signs the session in.
// POST /auth/passkey/login/finish
func (h *Handler) HandleLoginFinish(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if session.Username == "" {
		http.Error(w, "Enter username first", http.StatusBadRequest)
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		http.Error(w, "Invalid assertion response", http.StatusBadRequest)
		return
	}

	if err := h.service.FinishLogin(r.Context(), session.ID, session.Username, response); err != nil {
		if errors.Is(err, passkeys.ErrNoCeremony) {
			http.Error(w, "No login in progress", http.StatusBadRequest)
			return
		}
		log.Printf("failed to finish passkey login: %v", err)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.SignIn(r.Context(), session.ID, session.Username); err != nil {
		log.Printf("failed to sign in session: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.collector.RecordSignin("passkey")
	writeJSON(w, map[string]string{"username": session.Username})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
